package addon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AddonLoader/internal/errors"
	"AddonLoader/pkg/logger"
)

// Loader discovers addons in a directory and hands each one to its pipeline.
// A scan is strictly sequential: every entry is fully dispatched before the
// listing advances.
type Loader struct {
	cfg       Config
	lister    DirectoryLister
	mounter   ArchiveMounter
	scripts   ScriptLoader
	modules   ModuleLoader
	host      SceneHost
	notifiers []Notifier
	recorders []Recorder
	resolve   func(string) string
	log       *slog.Logger
	now       func() time.Time
}

// Option modifies a Loader under construction.
type Option func(*Loader)

// WithLister overrides the directory lister.
func WithLister(lister DirectoryLister) Option {
	return func(l *Loader) {
		if lister != nil {
			l.lister = lister
		}
	}
}

// WithArchiveMounter sets the collaborator used for resource packs.
func WithArchiveMounter(m ArchiveMounter) Option {
	return func(l *Loader) {
		if m != nil {
			l.mounter = m
		}
	}
}

// WithScriptLoader sets the collaborator resolving scripts inside mounted packs.
func WithScriptLoader(s ScriptLoader) Option {
	return func(l *Loader) {
		if s != nil {
			l.scripts = s
		}
	}
}

// WithModuleLoader overrides the code module loader.
func WithModuleLoader(m ModuleLoader) Option {
	return func(l *Loader) {
		if m != nil {
			l.modules = m
		}
	}
}

// WithNotifier registers a listener for AddonLoaded events.
func WithNotifier(n Notifier) Option {
	return func(l *Loader) {
		if n != nil {
			l.notifiers = append(l.notifiers, n)
		}
	}
}

// WithRecorder registers an outcome observer.
func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		if r != nil {
			l.recorders = append(l.recorders, r)
		}
	}
}

// WithPathResolver translates virtual paths such as user://addons into host paths.
func WithPathResolver(fn func(string) string) Option {
	return func(l *Loader) {
		if fn != nil {
			l.resolve = fn
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader validates cfg and wires the collaborators. The host is mandatory;
// resource packs additionally need a mounter and a script loader.
func NewLoader(cfg Config, host SceneHost, opts ...Option) (*Loader, error) {
	cfg = cfg.WithDefaults().Clone()
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid addon configuration")
	}
	if host == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "scene host cannot be nil")
	}
	l := &Loader{
		cfg:     cfg,
		lister:  NewOSLister(cfg.IncludeDirs),
		modules: GoPluginLoader{},
		host:    host,
		resolve: func(p string) string { return p },
		log:     logger.Named("addon"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if len(cfg.ResourcePackExtensions) > 0 && (l.mounter == nil || l.scripts == nil) {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "resource packs require an archive mounter and a script loader")
	}
	return l, nil
}

// Config returns a copy of the loader configuration.
func (l *Loader) Config() Config {
	return l.cfg.Clone()
}

// Scan walks the addons directory once. It never fails: an unavailable
// directory means no addons, and each entry degrades on its own.
func (l *Loader) Scan(ctx context.Context) Summary {
	summary := Summary{ScanID: uuid.NewString()}
	log := l.log.With(slog.String("scan_id", summary.ScanID))
	defer func() { l.finishScan(ctx, summary) }()

	dir := l.resolve(l.cfg.AddonsDir)
	listing, err := l.lister.Open(dir)
	if err != nil {
		log.Warn("addons directory unavailable",
			slog.String("dir", l.cfg.AddonsDir),
			slog.Any("error", xerrors.Wrap(xerrors.CodeDirectoryUnavailable, err, "")))
		return summary
	}
	defer func() {
		if err := listing.Close(); err != nil {
			log.Warn("close addons directory", slog.Any("error", err))
		}
	}()

	for {
		name, ok := listing.Next()
		if !ok {
			break
		}
		summary.Entries++
		desc := l.cfg.Describe(name)
		if desc.Kind == KindUnknown {
			summary.Skipped++
			continue
		}
		outcome := l.dispatch(ctx, summary.ScanID, joinEntry(dir, name), desc)
		summary.add(outcome)
		l.record(ctx, outcome)
	}
	if errer, ok := listing.(interface{ Err() error }); ok && errer.Err() != nil {
		log.Warn("addons directory listing ended early", slog.Any("error", errer.Err()))
	}
	log.Info("addon scan finished",
		slog.Int("entries", summary.Entries),
		slog.Int("loaded", summary.Loaded),
		slog.Int("abandoned", summary.Abandoned),
		slog.Int("skipped", summary.Skipped))
	return summary
}

// LoadAddon dispatches a single file of the addons directory outside of a scan.
func (l *Loader) LoadAddon(ctx context.Context, fileName string) Outcome {
	scanID := uuid.NewString()
	desc := l.cfg.Describe(fileName)
	if desc.Kind == KindUnknown {
		return Outcome{ScanID: scanID, Descriptor: desc, Reached: StateDiscovered}
	}
	outcome := l.dispatch(ctx, scanID, joinEntry(l.resolve(l.cfg.AddonsDir), fileName), desc)
	l.record(ctx, outcome)
	return outcome
}

func (l *Loader) dispatch(ctx context.Context, scanID, addonPath string, desc Descriptor) (out Outcome) {
	started := l.now()
	out = Outcome{ScanID: scanID, Descriptor: desc, Reached: StateClassified}
	log := l.log.With(slog.String("scan_id", scanID), slog.String("addon", desc.FileName))

	defer func() {
		if r := recover(); r != nil {
			out.Err = xerrors.New(xerrors.CodeAddonPanic, fmt.Sprintf("%v", r))
			log.Error("addon panicked during load", slog.String("state", out.Reached.String()), slog.Any("panic", r))
		}
		out.Duration = l.now().Sub(started)
	}()

	var obj Object
	switch desc.Kind {
	case KindResourcePack:
		obj, out.Err = l.loadResourcePack(log, addonPath, desc, &out.Reached)
	case KindCodeModule:
		obj, out.Err = l.loadCodeModule(log, addonPath, &out.Reached)
	}
	if out.Err != nil {
		return out
	}

	if err := l.attach(obj, desc); err != nil {
		out.Err = err
		log.Error("attach addon", slog.Any("error", err))
		return out
	}
	out.Reached = StateAttached

	if err := l.notify(ctx, scanID, desc); err != nil {
		out.Err = err
		log.Warn("notify addon loaded", slog.Any("error", err))
		return out
	}
	out.Reached = StateNotified
	return out
}

// loadResourcePack and loadCodeModule advance *reached as each collaborator
// succeeds so a later panic still reports the furthest state.
func (l *Loader) loadResourcePack(log *slog.Logger, addonPath string, desc Descriptor, reached *State) (Object, error) {
	if err := l.mounter.Mount(addonPath); err != nil {
		log.Error(fmt.Sprintf("Error loading resource pack %s.", addonPath), slog.Any("error", err))
		return nil, xerrors.Wrap(xerrors.CodeMountFailure, err, "", xerrors.WithMetadata("path", addonPath))
	}
	*reached = StateMounted
	log.Info(fmt.Sprintf("Resource pack %s loaded.", addonPath))

	scriptPath := l.cfg.ScriptPath(desc.BaseName)
	script, err := l.scripts.LoadScript(scriptPath)
	if err != nil || isNil(script) {
		return nil, xerrors.Wrap(xerrors.CodeResourceMiss, err, "", xerrors.WithMetadata("script", scriptPath))
	}
	obj, err := l.scripts.Instantiate(script)
	if err != nil || isNil(obj) {
		return nil, xerrors.Wrap(xerrors.CodeInstantiationMiss, err, "", xerrors.WithMetadata("script", scriptPath))
	}
	*reached = StateInstantiated
	return obj, nil
}

func (l *Loader) loadCodeModule(log *slog.Logger, addonPath string, reached *State) (Object, error) {
	module, err := l.modules.LoadModule(addonPath)
	if err != nil || isNil(module) {
		if err == nil {
			err = errors.New("module loader returned no module")
		}
		log.Error(fmt.Sprintf("Error loading module %s.", addonPath), slog.Any("error", err))
		return nil, xerrors.Wrap(xerrors.CodeModuleLoadFailure, err, "", xerrors.WithMetadata("path", addonPath))
	}
	*reached = StateLoaded
	log.Info(fmt.Sprintf("Module %s loaded.", addonPath))

	obj, err := l.modules.CreateInstance(module, l.cfg.MainClass)
	if err != nil || isNil(obj) {
		return nil, xerrors.Wrap(xerrors.CodeInstantiationMiss, err, "", xerrors.WithMetadata("class", l.cfg.MainClass))
	}
	*reached = StateInstantiated
	return obj, nil
}

func (l *Loader) attach(obj Object, desc Descriptor) error {
	obj.SetName(desc.BaseName)
	if err := l.host.AttachChild(obj, true); err != nil {
		return xerrors.Wrap(xerrors.CodeAttachFailure, err, "", xerrors.WithMetadata("addon", desc.BaseName))
	}
	l.log.Info(fmt.Sprintf("%s add-on %s loaded.", desc.Kind.Label(), desc.BaseName))
	if logger.AuditEnabled() {
		logger.Audit().Info("addon attached",
			slog.String("addon", desc.BaseName),
			slog.String("file", desc.FileName),
			slog.String("kind", string(desc.Kind)),
			slog.String("attached_as", obj.Name()))
	}
	return nil
}

func (l *Loader) notify(ctx context.Context, scanID string, desc Descriptor) error {
	if len(l.notifiers) == 0 {
		return nil
	}
	event := Event{
		ID:         uuid.NewString(),
		Name:       EventAddonLoaded,
		Addon:      desc.BaseName,
		Kind:       desc.Kind,
		ScanID:     scanID,
		OccurredAt: l.now().UTC(),
	}
	var errs []error
	for _, n := range l.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodeNotifyFailure, errors.Join(errs...), "")
	}
	return nil
}

// joinEntry keeps virtual roots such as user:// intact.
func joinEntry(dir, name string) string {
	if strings.Contains(dir, "://") {
		return JoinResource(dir, name)
	}
	return filepath.Join(dir, name)
}

func (l *Loader) finishScan(ctx context.Context, summary Summary) {
	for _, r := range l.recorders {
		if obs, ok := r.(ScanObserver); ok {
			obs.ScanFinished(ctx, summary)
		}
	}
}

func (l *Loader) record(ctx context.Context, outcome Outcome) {
	for _, r := range l.recorders {
		if err := r.Record(ctx, outcome); err != nil {
			l.log.Warn("record addon outcome", slog.String("addon", outcome.Descriptor.FileName), slog.Any("error", err))
		}
	}
}
