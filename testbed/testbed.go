// Package testbed builds throwaway module bundles for tests.
//
// Bundles wrap a tiny hand-assembled core WASM module exporting two
// functions:
//
//	add: func(a: i32, b: i32) -> i32
//	tag: func() -> i32          // returns the tag the bundle was built with
//
// The tag lets a test tell apart which bundle generation an execution is
// actually running against.
package testbed

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Module returns a valid core WASM binary whose "tag" export returns tag.
// tag must stay below 64 so it encodes as a single LEB128 byte.
func Module(tag byte) []byte {
	if tag >= 64 {
		panic("testbed: tag must be < 64")
	}
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
		// type section: (i32,i32)->i32, ()->i32
		0x01, 0x0b, 0x02,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
		0x60, 0x00, 0x01, 0x7f,
		// function section
		0x03, 0x03, 0x02, 0x00, 0x01,
		// export section: "add" func 0, "tag" func 1
		0x07, 0x0d, 0x02,
		0x03, 'a', 'd', 'd', 0x00, 0x00,
		0x03, 't', 'a', 'g', 0x00, 0x01,
		// code section
		0x0a, 0x0e, 0x02,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, // add: local.get 0; local.get 1; i32.add
		0x04, 0x00, 0x41, tag, 0x0b, // tag: i32.const tag
	}
}

// Bytes builds an in-memory bundle archive with the given manifest
// version and module tag. An empty version omits the attribute; the
// special version "-" omits the manifest entry entirely.
func Bytes(version string, tag byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("module.wasm")
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(Module(tag)); err != nil {
		panic(err)
	}

	if version != "-" {
		w, err = zw.Create("manifest.mf")
		if err != nil {
			panic(err)
		}
		manifest := "Bundle-Name: testbed\n"
		if version != "" {
			manifest += fmt.Sprintf("Implementation-Version: %s\n", version)
		}
		if _, err := w.Write([]byte(manifest)); err != nil {
			panic(err)
		}
	}

	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteBundle writes a bundle into dir and returns its path.
func WriteBundle(t testing.TB, dir, version string, tag byte) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("bundle-%s-%d.zip", version, tag))
	if err := os.WriteFile(path, Bytes(version, tag), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}
