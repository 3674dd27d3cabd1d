package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseStore    Phase = "store"    // persisting an uploaded bundle
	PhaseResolve  Phase = "resolve"  // turning a location into a handle
	PhaseMetadata Phase = "metadata" // manifest/version extraction
	PhaseLoad     Phase = "load"     // bundle open and module compilation
	PhaseExecute  Phase = "execute"  // running caller work against a module
	PhaseWatch    Phase = "watch"    // drop-in directory watching
)

// Kind categorizes the error
type Kind string

const (
	KindStorageIO        Kind = "storage_io"
	KindBadLocation      Kind = "bad_location"
	KindManifestMissing  Kind = "manifest_missing"
	KindAttributeMissing Kind = "attribute_missing"
	KindInvalidBundle    Kind = "invalid_bundle"
	KindNotFound         Kind = "not_found"
	KindInvocation       Kind = "invocation"
	KindInvalidInput     Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Location string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Location != "" {
		b.WriteString(" at ")
		b.WriteString(e.Location)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Location sets the offending resource location
func (b *Builder) Location(loc string) *Builder {
	b.err.Location = loc
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Storage creates a storage failure error. The enclosing replace call
// fails and the active location is left unchanged.
func Storage(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseStore,
		Kind:   KindStorageIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Resolution creates an unresolvable-location error. Fatal to the
// single execution that hit it, never to shared state.
func Resolution(location string, cause error) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindBadLocation,
		Location: location,
		Cause:    cause,
	}
}

// Metadata creates a version extraction error. Callers recover from
// these locally; they never fail the enclosing store call.
func Metadata(kind Kind, location string, cause error) *Error {
	return &Error{
		Phase:    PhaseMetadata,
		Kind:     kind,
		Location: location,
		Cause:    cause,
	}
}

// Load creates a bundle loading or compilation error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidBundle,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Invocation creates an export invocation error
func Invocation(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindInvocation,
		Detail: fmt.Sprintf("call %q", fn),
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// IsStorage reports whether err is a storage failure
func IsStorage(err error) bool {
	return matches(err, PhaseStore, KindStorageIO)
}

// IsResolution reports whether err is an unresolvable-location failure
func IsResolution(err error) bool {
	return matches(err, PhaseResolve, KindBadLocation)
}

func matches(err error, phase Phase, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Phase == phase && e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
