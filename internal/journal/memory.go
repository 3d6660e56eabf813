package journal

import (
	"context"
	"sync"
	"time"

	"AddonLoader/pkg/addon"
)

// MemoryStore keeps the most recent entries in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	entries  []Entry
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding at most capacity entries; zero or
// less means unbounded.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity, now: time.Now}
}

// Record implements addon.Recorder.
func (m *MemoryStore) Record(ctx context.Context, outcome addon.Outcome) error {
	entry := FromOutcome(outcome, m.now())
	return m.Append(ctx, &entry)
}

// Append stores entry and assigns its ID.
func (m *MemoryStore) Append(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, *entry)
	if m.capacity > 0 && len(m.entries) > m.capacity {
		m.entries = append([]Entry(nil), m.entries[len(m.entries)-m.capacity:]...)
	}
	return nil
}

// ListLatest returns up to limit entries, newest first.
func (m *MemoryStore) ListLatest(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// ListScan returns the entries of one scan in dispatch order.
func (m *MemoryStore) ListScan(_ context.Context, scanID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.entries {
		if e.ScanID == scanID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
