// Package events delivers AddonLoaded notifications to in-process observers
// and to external brokers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"AddonLoader/pkg/addon"
)

// Handler observes an event.
type Handler func(ctx context.Context, event addon.Event)

// Observers is a registration list of in-process callbacks.
type Observers struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	order    []int
}

var _ addon.Notifier = (*Observers)(nil)

// NewObservers creates an empty observer list.
func NewObservers() *Observers {
	return &Observers{handlers: map[int]Handler{}}
}

// Subscribe registers h and returns a function that removes it.
func (o *Observers) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	o.mu.Lock()
	id := o.next
	o.next++
	o.handlers[id] = h
	o.order = append(o.order, id)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.handlers, id)
			for i, v := range o.order {
				if v == id {
					o.order = append(o.order[:i], o.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of registered handlers.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}

// Notify calls every handler in registration order.
func (o *Observers) Notify(ctx context.Context, event addon.Event) error {
	o.mu.RLock()
	handlers := make([]Handler, 0, len(o.order))
	for _, id := range o.order {
		handlers = append(handlers, o.handlers[id])
	}
	o.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, event)
	}
	return nil
}

// Channel forwards events into a Go channel.
type Channel struct {
	ch chan addon.Event
}

var _ addon.Notifier = (*Channel)(nil)

// NewChannel creates a channel notifier with the given buffer size.
func NewChannel(size int) *Channel {
	if size < 0 {
		size = 0
	}
	return &Channel{ch: make(chan addon.Event, size)}
}

// C returns the receive side.
func (c *Channel) C() <-chan addon.Event {
	return c.ch
}

// Notify blocks until the event is buffered or ctx ends.
func (c *Channel) Notify(ctx context.Context, event addon.Event) error {
	select {
	case c.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fanout notifies several notifiers in order and joins their failures.
type Fanout struct {
	notifiers []addon.Notifier
}

var _ addon.Notifier = (*Fanout)(nil)

// NewFanout skips nil notifiers.
func NewFanout(notifiers ...addon.Notifier) *Fanout {
	list := make([]addon.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return &Fanout{notifiers: list}
}

// Notify implements addon.Notifier.
func (f *Fanout) Notify(ctx context.Context, event addon.Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every notifier that holds a connection.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var err error
	for _, n := range f.notifiers {
		if c, ok := n.(interface{ Close() error }); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

// Encode serialises an event for brokers.
func Encode(event addon.Event) ([]byte, error) {
	return json.Marshal(event)
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (addon.Event, error) {
	var event addon.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return addon.Event{}, fmt.Errorf("decode addon event: %w", err)
	}
	return event, nil
}
