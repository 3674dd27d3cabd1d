package loader

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/hotswap/bundle"
	"github.com/wippyai/hotswap/errors"
)

// Context is the ambient execution context: the module bundle caller
// work runs against, chained to the context that was ambient when it
// was built. The bundle is opened and compiled lazily, once, on first
// use; a Context is safe for concurrent use after that.
type Context struct {
	factory *Factory
	handle  Handle
	parent  *Context

	compileOnce sync.Once
	compiled    wazero.CompiledModule
	compileErr  error
}

// Handle returns the bundle handle this context runs against.
func (c *Context) Handle() Handle { return c.handle }

// Parent returns the context that was ambient when this one was built,
// or nil for a root context.
func (c *Context) Parent() *Context { return c.parent }

func (c *Context) compile(ctx context.Context) (wazero.CompiledModule, error) {
	c.compileOnce.Do(func() {
		b, err := bundle.Open(c.handle.Path())
		if err != nil {
			c.compileErr = err
			return
		}
		defer b.Close()

		wasm, err := b.WASM()
		if err != nil {
			c.compileErr = err
			return
		}
		c.compiled, c.compileErr = c.factory.runtime.CompileModule(ctx, wasm)
		if c.compileErr != nil {
			c.compileErr = errors.Load("compile module", c.compileErr)
		}
	})
	return c.compiled, c.compileErr
}

// Exports returns the sorted names of the module's exported functions.
func (c *Context) Exports(ctx context.Context) ([]string, error) {
	compiled, err := c.compile(ctx)
	if err != nil {
		return nil, err
	}
	defs := compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Invoke instantiates the module and calls the named export. Each call
// gets a fresh instance, so exports never observe each other's linear
// memory.
func (c *Context) Invoke(ctx context.Context, fn string, params ...uint64) ([]uint64, error) {
	compiled, err := c.compile(ctx)
	if err != nil {
		return nil, err
	}

	mod, err := c.factory.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Load("instantiate module", err)
	}
	defer mod.Close(ctx)

	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseExecute, "export", fn)
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, errors.Invocation(fn, err)
	}
	return results, nil
}

type ambientKey struct{}

// WithContext returns a context.Context carrying c as the ambient
// execution context.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ambientKey{}, c)
}

// FromContext returns the ambient execution context, or nil when none
// is installed.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(ambientKey{}).(*Context)
	return c
}
