// Package swap coordinates hot replacement of the active module bundle.
//
// A long-running service keeps one global bundle loaded; swap lets it be
// replaced at any time without interrupting executions already running
// against the previous bundle, and without any later execution seeing a
// stale one.
//
// # Store
//
// Store owns the replace/retire protocol around two lock domains: a
// store-wide location lock over the (location, version, content lock)
// tuple, and a per-bundle content lock whose read side pins a bundle for
// the duration of an execution. Replacement never waits for readers: if
// the content write lock is not immediately free, the store adopts the
// new bundle for future executions and abandons the old lock instance to
// whoever still holds it. Abandoned bundles are retired only after their
// last reader releases.
//
//	store := swap.NewStore(swap.Config{
//	    Storage: tempStore,
//	    Factory: factory,
//	    Retire:  func(loc string) { tempStore.Remove(loc) },
//	})
//	store.Replace(uploadedBytes)
//	fmt.Println(store.Version())
//
// # Executor
//
// Executor runs caller work with a bundle installed as the ambient
// execution context. Work either uses the store's active bundle or a
// caller-supplied override location that bypasses the store entirely:
//
//	out, err := swap.Execute(exec, ctx, "", func(ctx context.Context) (uint64, error) {
//	    res, err := loader.FromContext(ctx).Invoke(ctx, "add", 2, 3)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return res[0], nil
//	})
//
// # Guarantees
//
// Executions started after Replace returns observe the new bundle.
// Executions started before keep the bundle, and the handle, they
// started with until they finish. Replace's latency is independent of
// how long any execution runs. (location, version) pairs are only ever
// observed as they were atomically written.
package swap
