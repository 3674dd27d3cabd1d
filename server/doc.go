// Package server exposes the swap store and executor over HTTP.
//
// The API is deliberately thin: upload a bundle, point the store at an
// existing one, read the active version, and invoke module exports.
// Everything else stays in the swap package. The wire format here binds
// no other caller; CLI or RPC adapters talk to swap directly.
package server
