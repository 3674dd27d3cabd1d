package bundle

import (
	"archive/zip"
	"io"

	"github.com/wippyai/hotswap/errors"
)

const (
	// ModulePath is the archive entry holding the core WASM module.
	ModulePath = "module.wasm"
	// ManifestPath is the archive entry holding bundle metadata.
	ManifestPath = "manifest.mf"
)

// Bundle is an opened module bundle. It keeps the archive reader open;
// callers must Close it when done.
type Bundle struct {
	rc       *zip.ReadCloser
	module   *zip.File
	Manifest Manifest
}

// Open opens the bundle at path and reads its manifest. The module body
// is not read until WASM is called.
func Open(path string) (*Bundle, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Load("open bundle archive", err)
	}

	b := &Bundle{rc: rc}
	for _, f := range rc.File {
		switch f.Name {
		case ModulePath:
			b.module = f
		case ManifestPath:
			m, err := readManifest(f)
			if err != nil {
				rc.Close()
				return nil, err
			}
			b.Manifest = m
		}
	}

	if b.module == nil {
		rc.Close()
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidBundle).
			Location(path).
			Detail("archive has no %s entry", ModulePath).
			Build()
	}
	return b, nil
}

// WASM reads and returns the module body.
func (b *Bundle) WASM() ([]byte, error) {
	r, err := b.module.Open()
	if err != nil {
		return nil, errors.Load("open module body", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Load("read module body", err)
	}
	return data, nil
}

// Close releases the underlying archive.
func (b *Bundle) Close() error {
	return b.rc.Close()
}

func readManifest(f *zip.File) (Manifest, error) {
	r, err := f.Open()
	if err != nil {
		return nil, errors.Metadata(errors.KindManifestMissing, f.Name, err)
	}
	defer r.Close()
	return ParseManifest(r)
}

// ExtractVersion reads the Implementation-Version attribute out of the
// bundle at path. Every failure mode (missing file, not an archive, no
// manifest, no attribute) surfaces as a metadata-phase error; callers
// are expected to recover, not propagate.
func ExtractVersion(path string) (string, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return "", errors.Metadata(errors.KindInvalidBundle, path, err)
	}
	defer rc.Close()

	for _, f := range rc.File {
		if f.Name != ManifestPath {
			continue
		}
		m, err := readManifest(f)
		if err != nil {
			return "", err
		}
		v := m.Version()
		if v == "" {
			return "", errors.Metadata(errors.KindAttributeMissing, path, nil)
		}
		return v, nil
	}
	return "", errors.Metadata(errors.KindManifestMissing, path, nil)
}
