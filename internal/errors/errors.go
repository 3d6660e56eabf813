package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code identifies a failure class across the loader.
type Code string

// Severity drives how loudly a failure is logged.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes carries the default behaviour for a code.
type Attributes struct {
	Message  string
	Severity Severity
	// Silent failures are recorded but never logged or alerted on.
	Silent bool
	Alert  bool
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"

	CodeDirectoryUnavailable Code = "DIRECTORY_UNAVAILABLE"
	CodeMountFailure         Code = "MOUNT_FAILURE"
	CodeModuleLoadFailure    Code = "MODULE_LOAD_FAILURE"
	CodeResourceMiss         Code = "RESOURCE_MISS"
	CodeInstantiationMiss    Code = "INSTANTIATION_MISS"
	CodeAttachFailure        Code = "ATTACH_FAILURE"
	CodeNotifyFailure        Code = "NOTIFY_FAILURE"
	CodeAddonPanic           Code = "ADDON_PANIC"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo},
		CodeInitializationFailure: {Message: "component not initialized", Severity: SeverityWarning, Alert: true},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Alert: true},
		CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Alert: true},
		CodeDirectoryUnavailable:  {Message: "addons directory unavailable", Severity: SeverityWarning},
		CodeMountFailure:          {Message: "resource pack mount failed", Severity: SeverityWarning, Alert: true},
		CodeModuleLoadFailure:     {Message: "code module load failed", Severity: SeverityWarning, Alert: true},
		CodeResourceMiss:          {Message: "addon script not found", Severity: SeverityInfo, Silent: true},
		CodeInstantiationMiss:     {Message: "addon instance not created", Severity: SeverityInfo, Silent: true},
		CodeAttachFailure:         {Message: "addon attach failed", Severity: SeverityWarning, Alert: true},
		CodeNotifyFailure:         {Message: "addon notification failed", Severity: SeverityWarning},
		CodeAddonPanic:            {Message: "addon panicked during load", Severity: SeverityCritical, Alert: true},
	}
)

// Register lets a package describe an additional code at init time.
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf returns the attributes of code, falling back to UNKNOWN.
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the coded error type shared by every package of the loader.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	alert    *bool
	severity *Severity
}

// Option customises an Error.
type Option func(*Error)

// WithMetadata attaches a key/value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAlert overrides the alert attribute of the code.
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.alert = &alert
	}
}

// WithSeverity overrides the severity attribute of the code.
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New builds an Error. An empty message takes the registered default.
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap builds an Error around cause.
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on code so callers can compare against a sentinel built with New.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the human readable message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// ShouldAlert reports whether the failure should page someone.
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return AttributesOf(e.code).Alert
}

// Severity returns the effective severity.
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// Silent reports whether the failure is recorded without being logged.
func (e *Error) Silent() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Silent
}

// From extracts an *Error from the chain of err.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or UNKNOWN.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// ShouldAlert reports whether err carries an alerting code.
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf returns the severity of err.
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// IsSilent reports whether err belongs to the silently-degrading failure class.
func IsSilent(err error) bool {
	if e, ok := From(err); ok {
		return e.Silent()
	}
	return false
}
