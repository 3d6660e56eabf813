package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AddonLoader/internal/journal"
	"AddonLoader/pkg/scene"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Server serves the status API.
type Server struct {
	addr    string
	journal journal.Store
	root    *scene.Node
	metrics http.Handler
}

// Option customises a Server.
type Option func(*Server)

// WithJournal exposes journal entries under /api/v1/loads and /api/v1/scans/.
func WithJournal(store journal.Store) Option {
	return func(s *Server) { s.journal = store }
}

// WithTree exposes the subtree rooted at root under /api/v1/tree.
func WithTree(root *scene.Node) Option {
	return func(s *Server) { s.root = root }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer builds a server listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{addr: addr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/loads", s.handleLoads)
	mux.HandleFunc("/api/v1/scans/", s.handleScan)
	mux.HandleFunc("/api/v1/tree", s.handleTree)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		return errors.New("api address is empty")
	}
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleLoads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxLimit)
	}

	entries, err := s.journal.ListLatest(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	scanID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/scans/"), "/")
	if scanID == "" {
		http.Error(w, "missing scan id", http.StatusBadRequest)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}

	entries, err := s.journal.ListScan(r.Context(), scanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "scan not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// treeNode is the JSON form of a scene node.
type treeNode struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Ready      bool           `json:"ready"`
	Properties map[string]any `json:"properties,omitempty"`
	Children   []treeNode     `json:"children,omitempty"`
}

func snapshot(n *scene.Node) treeNode {
	out := treeNode{Name: n.Name(), Path: n.Path(), Ready: n.IsReady()}
	if names := n.PropertyNames(); len(names) > 0 {
		out.Properties = make(map[string]any, len(names))
		for _, key := range names {
			out.Properties[key], _ = n.Property(key)
		}
	}
	for _, child := range n.Children() {
		out.Children = append(out.Children, snapshot(child))
	}
	return out
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	if s.root == nil {
		http.Error(w, "tree unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(s.root))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext rejects requests once the root context is done.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
