package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/testbed"
)

func TestOpenAndReadWASM(t *testing.T) {
	path := testbed.WriteBundle(t, t.TempDir(), "1.2.3", 7)

	b, err := Open(path)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer b.Close()

	if got := b.Manifest.Version(); got != "1.2.3" {
		t.Errorf("manifest version = %q, want 1.2.3", got)
	}

	wasm, err := b.WASM()
	if err != nil {
		t.Fatalf("read wasm: %v", err)
	}
	if !bytes.Equal(wasm, testbed.Module(7)) {
		t.Error("module body does not round-trip")
	}
}

func TestOpenRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a non-archive")
	}
}

func TestOpenRejectsMissingModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.zip")
	// a valid but empty zip archive
	if err := os.WriteFile(path, emptyZip(t), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected error for bundle without module.wasm")
	}
	if !strings.Contains(err.Error(), "module.wasm") {
		t.Errorf("error should name the missing entry: %v", err)
	}
}

func TestExtractVersion(t *testing.T) {
	dir := t.TempDir()
	path := testbed.WriteBundle(t, dir, "4.0.1", 1)

	v, err := ExtractVersion(path)
	if err != nil {
		t.Fatalf("extract version: %v", err)
	}
	if v != "4.0.1" {
		t.Errorf("version = %q, want 4.0.1", v)
	}
}

func TestExtractVersionFailures(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		kind errors.Kind
	}{
		{"missing file", filepath.Join(dir, "absent.zip"), errors.KindInvalidBundle},
		{"no manifest", testbed.WriteBundle(t, dir, "-", 2), errors.KindManifestMissing},
		{"no attribute", testbed.WriteBundle(t, dir, "", 3), errors.KindAttributeMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractVersion(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("expected *errors.Error, got %T", err)
			}
			if e.Phase != errors.PhaseMetadata {
				t.Errorf("phase = %s, want metadata", e.Phase)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
		})
	}
}

func emptyZip(t *testing.T) []byte {
	t.Helper()
	// minimal end-of-central-directory record
	return []byte{0x50, 0x4b, 0x05, 0x06, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}
