package loader

import (
	"context"
	"os"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/hotswap/errors"
)

// Handle is a validated reference to a module bundle on disk. It is
// cheap to copy and carries no open state.
type Handle struct {
	path string
}

// Path returns the bundle location the handle was resolved from.
func (h Handle) Path() string { return h.path }

func (h Handle) String() string { return h.path }

// Factory resolves bundle locations into handles and builds execution
// contexts around them. It owns a single shared wazero runtime so
// compiled module caching is shared across contexts.
type Factory struct {
	runtime wazero.Runtime
}

// NewFactory creates a factory backed by a fresh wazero runtime.
func NewFactory(ctx context.Context) *Factory {
	return &Factory{runtime: wazero.NewRuntime(ctx)}
}

// Close releases the underlying runtime. All contexts built by this
// factory become unusable.
func (f *Factory) Close(ctx context.Context) error {
	return f.runtime.Close(ctx)
}

// Resolve validates location and returns a handle for it. It checks
// only that the location names a readable regular file; the archive is
// not opened until the context is used.
func (f *Factory) Resolve(location string) (Handle, error) {
	if location == "" {
		return Handle{}, errors.Resolution(location, nil)
	}
	info, err := os.Stat(location)
	if err != nil {
		return Handle{}, errors.Resolution(location, err)
	}
	if !info.Mode().IsRegular() {
		return Handle{}, errors.New(errors.PhaseResolve, errors.KindBadLocation).
			Location(location).
			Detail("not a regular file").
			Build()
	}
	return Handle{path: location}, nil
}

// Build constructs an execution context for h, chained to parent.
// parent may be nil. Build never fails; compilation is deferred to
// first use.
func (f *Factory) Build(h Handle, parent *Context) *Context {
	return &Context{
		factory: f,
		handle:  h,
		parent:  parent,
	}
}
