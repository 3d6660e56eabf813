package addon

import (
	"context"
	"time"
)

// Kind is the loading pipeline an addon file is routed to.
type Kind string

const (
	// KindUnknown entries are skipped without touching any collaborator.
	KindUnknown Kind = "unknown"
	// KindResourcePack addons are archives mounted into the resource namespace.
	KindResourcePack Kind = "resource_pack"
	// KindCodeModule addons are dynamically loaded code modules.
	KindCodeModule Kind = "code_module"
)

// Label returns the wording used in load confirmations.
func (k Kind) Label() string {
	switch k {
	case KindResourcePack:
		return "packaged-script"
	case KindCodeModule:
		return "dynamic-module"
	default:
		return "unknown"
	}
}

// State is the furthest step an entry reached in its pipeline.
type State int

const (
	StateDiscovered State = iota
	StateClassified
	StateMounted
	StateLoaded
	StateInstantiated
	StateAttached
	StateNotified
)

var stateNames = [...]string{
	StateDiscovered:   "discovered",
	StateClassified:   "classified",
	StateMounted:      "mounted",
	StateLoaded:       "loaded",
	StateInstantiated: "instantiated",
	StateAttached:     "attached",
	StateNotified:     "notified",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Descriptor is derived from a directory entry and lives for one dispatch.
type Descriptor struct {
	FileName  string
	BaseName  string
	Extension string
	Kind      Kind
}

// Object is anything that can be attached to the host as a named child.
type Object interface {
	Name() string
	SetName(name string)
}

// Script is a resolved script resource ready to be instantiated.
type Script interface {
	Path() string
}

// Module is a loaded code module.
type Module interface {
	Path() string
}

// EventAddonLoaded is the name carried by every load notification.
const EventAddonLoaded = "AddonLoaded"

// Event is raised once per addon that was attached.
type Event struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Addon      string    `json:"addon"`
	Kind       Kind      `json:"kind"`
	ScanID     string    `json:"scan_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Outcome records how far one classified entry got. Err is nil only when the
// entry was attached and every notifier accepted the event.
type Outcome struct {
	ScanID     string
	Descriptor Descriptor
	Reached    State
	Err        error
	Duration   time.Duration
}

// Loaded reports whether the addon made it into the host.
func (o Outcome) Loaded() bool {
	return o.Reached >= StateAttached
}

// Summary aggregates the outcomes of one scan.
type Summary struct {
	ScanID    string
	Entries   int
	Skipped   int
	Loaded    int
	Abandoned int
}

func (s *Summary) add(o Outcome) {
	if o.Loaded() {
		s.Loaded++
		return
	}
	s.Abandoned++
}

// DirectoryLister opens a directory for a lazy, single-pass listing.
type DirectoryLister interface {
	Open(path string) (Listing, error)
}

// Listing yields entry names until exhausted. Close must always be called.
type Listing interface {
	Next() (string, bool)
	Close() error
}

// ArchiveMounter mounts a packaged resource archive into the resource namespace.
type ArchiveMounter interface {
	Mount(path string) error
}

// ScriptLoader resolves and instantiates script resources.
type ScriptLoader interface {
	LoadScript(path string) (Script, error)
	Instantiate(script Script) (Object, error)
}

// ModuleLoader loads code modules and creates instances of named classes.
type ModuleLoader interface {
	LoadModule(path string) (Module, error)
	CreateInstance(module Module, className string) (Object, error)
}

// SceneHost inserts objects into the running tree. forceReady asks the host
// to run its ready ordering for the child immediately.
type SceneHost interface {
	AttachChild(obj Object, forceReady bool) error
}

// Notifier receives AddonLoaded events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Recorder observes every classified outcome, e.g. for journaling or metrics.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// ScanObserver is implemented by recorders that also want the summary of
// every finished scan, including scans of an unavailable directory.
type ScanObserver interface {
	ScanFinished(ctx context.Context, summary Summary)
}
