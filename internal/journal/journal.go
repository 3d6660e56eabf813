package journal

import (
	"context"
	"time"

	xerrors "AddonLoader/internal/errors"
	"AddonLoader/pkg/addon"
)

// Entry is the persisted form of an addon.Outcome.
type Entry struct {
	ID           int64         `json:"id"`
	ScanID       string        `json:"scan_id"`
	FileName     string        `json:"file_name"`
	BaseName     string        `json:"base_name"`
	Kind         addon.Kind    `json:"kind"`
	Reached      string        `json:"reached"`
	Loaded       bool          `json:"loaded"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	RecordedAt   time.Time     `json:"recorded_at"`
}

// Store persists entries. Every Store is an addon.Recorder.
type Store interface {
	addon.Recorder
	Append(ctx context.Context, entry *Entry) error
	ListLatest(ctx context.Context, limit int) ([]Entry, error)
	ListScan(ctx context.Context, scanID string) ([]Entry, error)
	Close() error
}

const defaultListLimit = 20

// FromOutcome converts an outcome into an entry stamped with at.
func FromOutcome(o addon.Outcome, at time.Time) Entry {
	entry := Entry{
		ScanID:     o.ScanID,
		FileName:   o.Descriptor.FileName,
		BaseName:   o.Descriptor.BaseName,
		Kind:       o.Descriptor.Kind,
		Reached:    o.Reached.String(),
		Loaded:     o.Loaded(),
		Duration:   o.Duration,
		RecordedAt: at,
	}
	if o.Err != nil {
		entry.ErrorCode = string(xerrors.CodeOf(o.Err))
		entry.ErrorMessage = o.Err.Error()
	}
	return entry
}
