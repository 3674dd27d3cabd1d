// Package bundle reads module bundles: zip archives carrying a core WASM
// module (module.wasm) and a manifest (manifest.mf) with key/value
// attributes, at minimum Implementation-Version.
//
// The package is the metadata collaborator of the swap store: version
// extraction is best-effort by contract, so every failure here is a
// metadata-phase error the store logs and recovers from.
package bundle
