// Package loader turns bundle locations into executable contexts.
//
// The Factory is the handle-factory collaborator of the swap store:
// Resolve validates a location into a Handle (failing fast on anything
// that cannot become a usable handle), and Build wraps a Handle in a
// Context chained to whatever context was ambient for the caller.
//
// A Context compiles its bundle's WASM module with wazero on first use
// and exposes Invoke for calling exported functions. The ambient
// context travels through context.Context:
//
//	ctx = loader.WithContext(ctx, execCtx)
//	...
//	cur := loader.FromContext(ctx)
//	results, err := cur.Invoke(ctx, "add", 2, 3)
package loader
