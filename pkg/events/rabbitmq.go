package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"AddonLoader/pkg/addon"
)

// RabbitMQConfig describes the exchange events are published to.
type RabbitMQConfig struct {
	URL        string `yaml:"url" toml:"url"`
	Exchange   string `yaml:"exchange" toml:"exchange"`
	RoutingKey string `yaml:"routingKey" toml:"routing_key"`
	Durable    bool   `yaml:"durable" toml:"durable"`
}

const (
	defaultExchange   = "addonloader.events"
	defaultRoutingKey = "addon.loaded"
)

// amqpChannel is the part of *amqp.Channel the notifier needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQNotifier publishes events to a topic exchange.
type RabbitMQNotifier struct {
	conn       *amqp.Connection
	ch         amqpChannel
	exchange   string
	routingKey string
}

var _ addon.Notifier = (*RabbitMQNotifier)(nil)

// NewRabbitMQNotifier dials the broker and declares the exchange.
func NewRabbitMQNotifier(cfg RabbitMQConfig) (*RabbitMQNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url cannot be empty")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare rabbitmq exchange: %w", err)
	}
	n := newRabbitMQNotifier(ch, exchange, cfg.RoutingKey)
	n.conn = conn
	return n, nil
}

func newRabbitMQNotifier(ch amqpChannel, exchange, routingKey string) *RabbitMQNotifier {
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}
	return &RabbitMQNotifier{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Notify implements addon.Notifier.
func (n *RabbitMQNotifier) Notify(ctx context.Context, event addon.Event) error {
	if n == nil || n.ch == nil {
		return errors.New("rabbitmq notifier not initialised")
	}
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	return n.ch.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.Name,
		Timestamp:    event.OccurredAt.Truncate(time.Second),
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// Close closes the channel and the connection.
func (n *RabbitMQNotifier) Close() error {
	if n == nil {
		return nil
	}
	var err error
	if n.ch != nil {
		err = n.ch.Close()
	}
	if n.conn != nil {
		err = errors.Join(err, n.conn.Close())
	}
	return err
}
