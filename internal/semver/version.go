// Package semver implements the Version and Constraint value types used
// throughout the plugify core: manifest dependency/conflict declarations,
// the resolver's solver clauses, and the resolver's reporting all share
// this package's Version ordering and Constraint satisfaction rules.
//
// Parsing and ordering are delegated to github.com/Masterminds/semver/v3;
// this package layers the exact (comparison, version) Constraint model and
// the redefined Compatible upper-bound rule on top of it.
package semver

import (
	"fmt"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Version is a semver triple plus optional pre-release and build metadata,
// totally ordered by semver precedence rules.
type Version struct {
	Major, Minor, Patch uint64
	Prerelease          string
	Build               string
}

// Parse reads a SemVer 2.0 version string.
func Parse(s string) (Version, error) {
	v, err := mmsemver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, fmt.Errorf("semver: invalid version %q: %w", s, err)
	}
	return fromLib(v), nil
}

// MustParse parses s and panics on error; reserved for literals in tests
// and generated code, never for embedder-supplied input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fromLib(v *mmsemver.Version) Version {
	return Version{
		Major:      v.Major(),
		Minor:      v.Minor(),
		Patch:      v.Patch(),
		Prerelease: v.Prerelease(),
		Build:      v.Metadata(),
	}
}

func (v Version) lib() *mmsemver.Version {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	// v was itself produced by Parse/fromLib, or hand-built from valid
	// fields by a caller; either way this round-trips through the
	// library's own parser cleanly.
	lv, err := mmsemver.NewVersion(s)
	if err != nil {
		// A Version built directly with an invalid Prerelease/Build
		// string is a caller bug, not a runtime condition to recover
		// from gracefully.
		panic(fmt.Sprintf("semver: internal version %q does not round-trip: %v", s, err))
	}
	return lv
}

// String renders the version in canonical SemVer 2.0 form.
func (v Version) String() string {
	return v.lib().String()
}

// Compare returns -1, 0 or 1 following semver precedence (major, minor,
// patch, then pre-release; build metadata never affects ordering).
func (v Version) Compare(other Version) int {
	return v.lib().Compare(other.lib())
}

func (v Version) Equal(other Version) bool   { return v.Compare(other) == 0 }
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }
