// Package storage persists uploaded module bundles to local disk.
//
// It is the storage collaborator of the swap store: StoreToTemp must
// return a location that is immediately readable by the loader, and
// Remove is safe to call for any previously active location because it
// refuses to touch paths outside its own root.
package storage
