package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"AddonLoader/internal/api"
	"AddonLoader/internal/config"
	"AddonLoader/internal/journal"
	"AddonLoader/internal/observability/metrics"
	"AddonLoader/internal/paths"
	"AddonLoader/pkg/addon"
	"AddonLoader/pkg/events"
	"AddonLoader/pkg/logger"
	"AddonLoader/pkg/scene"
	"AddonLoader/pkg/script"
	"AddonLoader/pkg/vfs"
)

// loaderNodeName is the node addons are attached under.
const loaderNodeName = "AddonLoader"

type app struct {
	cfg       *config.Config
	log       *slog.Logger
	tree      *scene.Tree
	ns        *vfs.Namespace
	observers *events.Observers
	metrics   *metrics.Collector
	journal   journal.Store
	loader    *addon.Loader
	node      *scene.Node
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		cfg:       cfg,
		log:       logger.Named("daemon"),
		tree:      scene.NewTree(),
		observers: events.NewObservers(),
		metrics:   metrics.NewCollector(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	resolver := paths.Default(cfg.Resources.ProjectDir)
	if cfg.Resources.UserDir != "" {
		resolver.UserDir = cfg.Resources.UserDir
	}

	a.ns = vfs.New(
		vfs.WithRoot(cfg.Addons.ResourceRoot),
		vfs.WithBase(os.DirFS(cfg.Resources.ProjectDir)),
	)
	a.closers = append(a.closers, a.ns)

	loaderNode := scene.NewNode(loaderNodeName)
	if err := a.tree.Root().AddChild(loaderNode, false); err != nil {
		return nil, err
	}
	a.tree.Start()
	a.node = loaderNode

	a.observers.Subscribe(func(ctx context.Context, event addon.Event) {
		logEvent(ctx, a.log, event)
	})
	notifiers := []addon.Notifier{a.observers}
	if cfg.Events.Redis != nil {
		n, err := events.NewRedisNotifier(ctx, *cfg.Events.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n)
		notifiers = append(notifiers, n)
	}
	if cfg.Events.RabbitMQ != nil {
		n, err := events.NewRabbitMQNotifier(*cfg.Events.RabbitMQ)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n)
		notifiers = append(notifiers, n)
	}
	fanout := events.NewFanout(notifiers...)

	opts := []addon.Option{
		addon.WithArchiveMounter(a.ns),
		addon.WithScriptLoader(script.NewLoader(a.ns)),
		addon.WithNotifier(fanout),
		addon.WithRecorder(a.metrics),
		addon.WithPathResolver(resolver.Globalize),
	}

	store, err := journal.Open(ctx, cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.journal = store
		a.closers = append(a.closers, store)
		opts = append(opts, addon.WithRecorder(store))
	}

	a.loader, err = addon.NewLoader(cfg.Addons, a.tree.Host(loaderNode), opts...)
	if err != nil {
		return nil, err
	}
	a.log.Info("addon loader ready",
		slog.String("addons_dir", cfg.Addons.AddonsDir),
		slog.String("resolved_dir", resolver.Globalize(cfg.Addons.AddonsDir)),
		slog.String("project_dir", cfg.Resources.ProjectDir))
	return a, nil
}

func (a *app) scan(ctx context.Context) addon.Summary {
	return a.loader.Scan(ctx)
}

// run scans once, serves metrics and the status API if configured and
// blocks until ctx ends.
func (a *app) run(ctx context.Context) error {
	summary := a.scan(ctx)
	a.log.Info("addons loaded", slog.String("scan_id", summary.ScanID), slog.Int("loaded", summary.Loaded))

	errCh := make(chan error, 2)
	if addr := a.cfg.Metrics.Address; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr, a.metrics); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		a.log.Info("metrics endpoint listening", slog.String("address", addr))
	}
	if addr := a.cfg.API.Address; addr != "" {
		server := api.NewServer(addr,
			api.WithJournal(a.journal),
			api.WithTree(a.node),
			api.WithMetrics(a.metrics.Handler()),
		)
		go func() {
			if err := server.Start(ctx); err != nil {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
		a.log.Info("status api listening", slog.String("address", addr))
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
		return nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (a *app) printTree(w io.Writer) {
	var walk func(n *scene.Node, depth int)
	walk = func(n *scene.Node, depth int) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n.Name())
		for _, child := range n.Children() {
			walk(child, depth+1)
		}
	}
	walk(a.tree.Root(), 0)
}

// Close stops the tree and releases every collaborator.
func (a *app) Close() error {
	if a.tree != nil {
		a.tree.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
