package swap

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/loader"
)

// Body is a unit of caller work. It runs with the selected bundle
// installed as the ambient execution context on its context.Context.
type Body func(ctx context.Context) (any, error)

// Executor is the public entry point for running caller work against
// either the store's active bundle or a caller-supplied override.
type Executor struct {
	store   *Store
	factory *loader.Factory
}

// NewExecutor creates an executor over store. The executor shares the
// store's loader factory so override contexts chain cleanly off global
// ones.
func NewExecutor(store *Store) *Executor {
	return &Executor{
		store:   store,
		factory: store.factory,
	}
}

// Run executes body under a bundle context. An empty location selects
// the store's active bundle; a non-empty location is an override: it is
// resolved directly, bypassing the store's locks entirely, so overrides
// neither affect nor are affected by concurrent replacement.
//
// Either way the caller's ambient context is the parent of the one body
// sees, and body's failure propagates unchanged.
func (e *Executor) Run(ctx context.Context, location string, body Body) (any, error) {
	if location != "" {
		return e.runProvided(ctx, location, body)
	}
	return e.runGlobal(ctx, body)
}

func (e *Executor) runGlobal(ctx context.Context, body Body) (any, error) {
	return e.store.WithCurrent(ctx, func(ctx context.Context, h loader.Handle) (any, error) {
		return e.withAmbient(ctx, h, body)
	})
}

func (e *Executor) runProvided(ctx context.Context, location string, body Body) (any, error) {
	h, err := e.factory.Resolve(location)
	if err != nil {
		Logger().Error("failed to resolve override bundle",
			zap.String("location", location),
			zap.Error(err))
		return nil, err
	}
	return e.withAmbient(ctx, h, body)
}

// withAmbient builds the execution context for h, parented on whatever
// context is ambient for the caller, and runs body with it installed.
// The caller's own context.Context is untouched, so its ambient context
// is identical before and after the call on every path.
func (e *Executor) withAmbient(ctx context.Context, h loader.Handle, body Body) (any, error) {
	parent := loader.FromContext(ctx)
	ec := e.factory.Build(h, parent)
	return body(loader.WithContext(ctx, ec))
}

// Execute runs body through e with a typed result. A zero T is
// returned alongside any error.
func Execute[T any](e *Executor, ctx context.Context, location string, body func(ctx context.Context) (T, error)) (T, error) {
	out, err := e.Run(ctx, location, func(ctx context.Context) (any, error) {
		return body(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		var zero T
		return zero, nil
	}
	return v, nil
}
