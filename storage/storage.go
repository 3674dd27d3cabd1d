package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wippyai/hotswap/errors"
)

// TempStore persists uploaded bundles under a single root directory.
// Every stored bundle gets a unique generated name; nothing is ever
// overwritten in place.
type TempStore struct {
	root string
}

// New creates a TempStore rooted at dir, creating it if needed.
// An empty dir uses a fresh directory under the system temp root.
func New(dir string) (*TempStore, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "hotswap-")
		if err != nil {
			return nil, errors.Storage("create store root", err)
		}
		dir = d
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Storage("create store root", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Storage("resolve store root", err)
	}
	return &TempStore{root: abs}, nil
}

// Root returns the store's root directory.
func (s *TempStore) Root() string {
	return s.root
}

// StoreToTemp writes data under a freshly generated unique name and
// returns its absolute path. The write goes through a temp file and a
// rename, so the returned location is never observed half-written.
func (s *TempStore) StoreToTemp(data []byte, prefix string) (string, error) {
	name := prefix + uuid.NewString() + ".zip"
	dst := filepath.Join(s.root, name)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", errors.Storage("create upload file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.Storage("write upload", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Storage("flush upload", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Storage("publish upload", err)
	}
	return dst, nil
}

// Remove deletes the bundle at location if, and only if, it lives inside
// the store's root. Locations outside the root (deployment defaults set
// by an operator) are left alone and return nil.
func (s *TempStore) Remove(location string) error {
	abs, err := filepath.Abs(location)
	if err != nil {
		return errors.Storage("resolve location", err)
	}
	if !s.contains(abs) {
		return nil
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return errors.Storage("remove bundle", err)
	}
	return nil
}

func (s *TempStore) contains(abs string) bool {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
