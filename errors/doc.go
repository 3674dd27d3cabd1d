// Package errors provides structured error types for the hotswap library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes the offending location and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindBadLocation).
//		Location("/srv/bundles/missing.zip").
//		Detail("bundle body is not a regular file").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Storage("write bundle", ioErr)
//	err := errors.Resolution(path, statErr)
//
// All errors implement the standard error interface and support errors.Is/As.
// The failure classes callers branch on have predicate helpers:
//
//	errors.IsStorage(err)    // persisting an upload failed, state unchanged
//	errors.IsResolution(err) // a location could not become a usable handle
package errors
