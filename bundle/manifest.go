package bundle

import (
	"bufio"
	"io"
	"strings"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/hotswap/errors"
)

// VersionAttribute is the manifest key carrying the bundle version.
const VersionAttribute = "Implementation-Version"

// Manifest holds the key/value attributes of a bundle manifest.
// Keys are case-sensitive.
type Manifest map[string]string

// ParseManifest reads "Key: Value" lines from r. Lines starting with a
// space continue the previous value; '#' lines and blank lines are
// skipped. A line with no colon is a malformed manifest.
func ParseManifest(r io.Reader) (Manifest, error) {
	m := make(Manifest)
	var lastKey string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, " ") && lastKey != "" {
			m[lastKey] += strings.TrimSpace(line)
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.New(errors.PhaseMetadata, errors.KindInvalidBundle).
				Detail("malformed manifest line %q", line).
				Build()
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.New(errors.PhaseMetadata, errors.KindInvalidBundle).
				Detail("manifest line %q has empty key", line).
				Build()
		}
		m[key] = strings.TrimSpace(value)
		lastKey = key
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Metadata(errors.KindInvalidBundle, "", err)
	}
	return m, nil
}

// Version returns the Implementation-Version attribute, or "" when absent.
func (m Manifest) Version() string {
	return m[VersionAttribute]
}

// SemVer parses the Implementation-Version attribute as semantic
// versioning. Bundles are not required to use semver; this is a
// convenience for callers that want ordering or display.
func (m Manifest) SemVer() (*semver.Version, error) {
	v := m.Version()
	if v == "" {
		return nil, errors.Metadata(errors.KindAttributeMissing, "", nil)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return nil, errors.Metadata(errors.KindInvalidBundle, "", err)
	}
	return sv, nil
}
