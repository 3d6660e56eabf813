// Package metrics exposes addon dispatch counters and latencies in the
// Prometheus text exposition format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	xerrors "AddonLoader/internal/errors"
	"AddonLoader/pkg/addon"
)

type outcomeKey struct {
	kind    string
	reached string
	code    string
}

type failureKey struct {
	kind string
	code string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Collector aggregates addon outcomes. It implements addon.Recorder.
type Collector struct {
	mu       sync.Mutex
	outcomes map[outcomeKey]uint64
	failures map[failureKey]uint64
	latency  map[string]*histogram
	scans    uint64
	entries  map[string]uint64
}

var (
	_ addon.Recorder     = (*Collector)(nil)
	_ addon.ScanObserver = (*Collector)(nil)
)

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		outcomes: make(map[outcomeKey]uint64),
		failures: make(map[failureKey]uint64),
		latency:  make(map[string]*histogram),
		entries:  make(map[string]uint64),
	}
}

// Record implements addon.Recorder.
func (c *Collector) Record(_ context.Context, outcome addon.Outcome) error {
	c.Observe(outcome)
	return nil
}

// Observe counts one outcome.
func (c *Collector) Observe(outcome addon.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind := string(outcome.Descriptor.Kind)
	code := ""
	if outcome.Err != nil {
		code = string(xerrors.CodeOf(outcome.Err))
		c.failures[failureKey{kind: kind, code: code}]++
	}
	c.outcomes[outcomeKey{kind: kind, reached: outcome.Reached.String(), code: code}]++

	hist := c.latency[kind]
	if hist == nil {
		hist = newHistogram()
		c.latency[kind] = hist
	}
	hist.observe(outcome.Duration.Seconds())
}

// ScanFinished implements addon.ScanObserver. Every scan is counted, including
// those that found nothing to dispatch.
func (c *Collector) ScanFinished(_ context.Context, summary addon.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans++
	c.entries["loaded"] += uint64(summary.Loaded)
	c.entries["abandoned"] += uint64(summary.Abandoned)
	c.entries["skipped"] += uint64(summary.Skipped)
}

func newHistogram() *histogram {
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Values above the last bound only show up in +Inf via h.count.
}

// Handler exposes the collector in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.render())
	})
}

func (c *Collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type outcomeMetric struct {
		outcomeKey
		value uint64
	}
	type failureMetric struct {
		failureKey
		value uint64
	}

	outs := make([]outcomeMetric, 0, len(c.outcomes))
	for key, value := range c.outcomes {
		outs = append(outs, outcomeMetric{outcomeKey: key, value: value})
	}
	fails := make([]failureMetric, 0, len(c.failures))
	for key, value := range c.failures {
		fails = append(fails, failureMetric{failureKey: key, value: value})
	}
	kinds := make([]string, 0, len(c.latency))
	for kind := range c.latency {
		kinds = append(kinds, kind)
	}

	sort.Slice(outs, func(i, j int) bool {
		if outs[i].kind != outs[j].kind {
			return outs[i].kind < outs[j].kind
		}
		if outs[i].reached != outs[j].reached {
			return outs[i].reached < outs[j].reached
		}
		return outs[i].code < outs[j].code
	})
	sort.Slice(fails, func(i, j int) bool {
		if fails[i].kind == fails[j].kind {
			return fails[i].code < fails[j].code
		}
		return fails[i].kind < fails[j].kind
	})
	sort.Strings(kinds)

	var b strings.Builder
	b.Grow(1024)

	b.WriteString("# HELP addonloader_scans_total Number of finished directory scans.\n")
	b.WriteString("# TYPE addonloader_scans_total counter\n")
	fmt.Fprintf(&b, "addonloader_scans_total %d\n", c.scans)

	b.WriteString("# HELP addonloader_scan_entries_total Directory entries by scan result.\n")
	b.WriteString("# TYPE addonloader_scan_entries_total counter\n")
	for _, result := range []string{"loaded", "abandoned", "skipped"} {
		fmt.Fprintf(&b, "addonloader_scan_entries_total{result=%q} %d\n", result, c.entries[result])
	}

	b.WriteString("# HELP addonloader_addon_outcomes_total Classified addon entries by furthest state reached.\n")
	b.WriteString("# TYPE addonloader_addon_outcomes_total counter\n")
	for _, m := range outs {
		fmt.Fprintf(&b, "addonloader_addon_outcomes_total{kind=\"%s\",reached=\"%s\",code=\"%s\"} %d\n",
			escape(m.kind), escape(m.reached), escape(m.code), m.value)
	}

	b.WriteString("# HELP addonloader_addon_failures_total Abandoned or partially loaded addon entries by error code.\n")
	b.WriteString("# TYPE addonloader_addon_failures_total counter\n")
	for _, m := range fails {
		fmt.Fprintf(&b, "addonloader_addon_failures_total{kind=\"%s\",code=\"%s\"} %d\n",
			escape(m.kind), escape(m.code), m.value)
	}

	b.WriteString("# HELP addonloader_addon_dispatch_duration_seconds Time spent dispatching one addon entry.\n")
	b.WriteString("# TYPE addonloader_addon_dispatch_duration_seconds histogram\n")
	for _, kind := range kinds {
		hist := c.latency[kind]
		for idx, bound := range hist.buckets {
			fmt.Fprintf(&b, "addonloader_addon_dispatch_duration_seconds_bucket{kind=\"%s\",le=\"%s\"} %d\n",
				escape(kind), formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "addonloader_addon_dispatch_duration_seconds_bucket{kind=\"%s\",le=\"+Inf\"} %d\n", escape(kind), hist.count)
		fmt.Fprintf(&b, "addonloader_addon_dispatch_duration_seconds_sum{kind=\"%s\"} %s\n", escape(kind), formatFloat(hist.sum))
		fmt.Fprintf(&b, "addonloader_addon_dispatch_duration_seconds_count{kind=\"%s\"} %d\n", escape(kind), hist.count)
	}

	return b.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, addr string, c *Collector) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
