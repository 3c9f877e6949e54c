// Package version parses and compares cco release versions.
//
// Releases use date versions (YYYY.MM.DD, optionally with a build suffix
// such as 2025.11.2+abc123). They order like semantic versions, so
// Masterminds/semver does the parsing. Build metadata never affects
// ordering or equality.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed release version.
type Version struct {
	raw string
	v   *semver.Version
}

// Parse parses s, accepting an optional leading "v".
func Parse(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return &Version{raw: s, v: v}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was given, without a leading "v".
func (v *Version) String() string {
	return strings.TrimPrefix(v.raw, "v")
}

// Core returns MAJOR.MINOR.PATCH with any pre-release but no build metadata.
func (v *Version) Core() string {
	s := fmt.Sprintf("%d.%d.%d", v.v.Major(), v.v.Minor(), v.v.Patch())
	if pre := v.v.Prerelease(); pre != "" {
		s += "-" + pre
	}
	return s
}

// Compare returns -1, 0 or 1.
func (v *Version) Compare(o *Version) int {
	return v.v.Compare(o.v)
}

// Equal reports whether v and o name the same release.
func (v *Version) Equal(o *Version) bool {
	return v.Compare(o) == 0
}

// NewerThan reports whether v is a later release than o.
func (v *Version) NewerThan(o *Version) bool {
	return v.Compare(o) > 0
}

// Same reports whether a and b name the same release. Unparsable versions
// are compared as plain strings.
func Same(a, b string) bool {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		return strings.TrimPrefix(strings.TrimSpace(a), "v") == strings.TrimPrefix(strings.TrimSpace(b), "v")
	}
	return va.Equal(vb)
}

// IsNewer reports whether candidate is newer than current. A current version
// that does not parse, such as a local "dev" build, is older than any
// release.
func IsNewer(candidate, current string) (bool, error) {
	c, err := Parse(candidate)
	if err != nil {
		return false, err
	}
	cur, err := Parse(current)
	if err != nil {
		return true, nil
	}
	return c.NewerThan(cur), nil
}
