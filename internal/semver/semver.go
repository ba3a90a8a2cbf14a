// Package semver evaluates the reduced semantic-version ranges used by
// extension manifests: caret, tilde, >=, exact and wildcard.
package semver

import (
	"regexp"
	"strconv"
	"strings"
)

// Version is a MAJOR.MINOR.PATCH triple. Pre-release and build suffixes are
// accepted by Parse but ignored for comparison.
type Version struct {
	Major int
	Minor int
	Patch int
}

var (
	versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

	// StrictPattern is the full MAJOR.MINOR.PATCH[-pre][+build] grammar manifests must follow.
	StrictPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

	// RangePattern matches one or more ranges joined with "||".
	RangePattern = regexp.MustCompile(`^\s*(\*|(\^|~|>=)?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?)(\s*\|\|\s*(\*|(\^|~|>=)?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?))*\s*$`)
)

// Parse decomposes s into a Version. A leading "v" is tolerated.
func Parse(s string) (Version, bool) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, false
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, false
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, false
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, false
	}
	return v, true
}

// Compare returns 1 if a > b, -1 if a < b, 0 if equal.
func (a Version) Compare(b Version) int {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func (a Version) String() string {
	return strconv.Itoa(a.Major) + "." + strconv.Itoa(a.Minor) + "." + strconv.Itoa(a.Patch)
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// Compare compares two version strings. Unparseable versions sort first.
func Compare(a, b string) int {
	va, okA := Parse(a)
	vb, okB := Parse(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return va.Compare(vb)
}

// HasUpdate reports whether latest is strictly newer than installed.
func HasUpdate(installed, latest string) bool {
	vi, okI := Parse(installed)
	vl, okL := Parse(latest)
	if !okI || !okL {
		return false
	}
	return vl.Compare(vi) > 0
}

// IsCompatible reports whether version satisfies rng.
//
//	^X.Y.Z  same major (X>0), same major.minor (X=0,Y>0), exact (0.0.Z)
//	~X.Y.Z  same major.minor, patch >= Z
//	>=X.Y.Z any version >= X.Y.Z
//	X.Y.Z   exact match
//	* or "" everything
func IsCompatible(rng, version string) bool {
	rng = strings.TrimSpace(rng)
	if rng == "" || rng == "*" {
		return true
	}

	v, ok := Parse(version)
	if !ok {
		return false
	}

	switch {
	case strings.HasPrefix(rng, "^"):
		base, ok := Parse(rng[1:])
		if !ok {
			return false
		}
		switch {
		case base.Major > 0:
			return v.Major == base.Major && v.Compare(base) >= 0
		case base.Minor > 0:
			return v.Major == 0 && v.Minor == base.Minor && v.Patch >= base.Patch
		default:
			return v.Major == 0 && v.Minor == 0 && v.Patch == base.Patch
		}

	case strings.HasPrefix(rng, "~"):
		base, ok := Parse(rng[1:])
		if !ok {
			return false
		}
		return v.Major == base.Major && v.Minor == base.Minor && v.Patch >= base.Patch

	case strings.HasPrefix(rng, ">="):
		base, ok := Parse(strings.TrimSpace(rng[2:]))
		if !ok {
			return false
		}
		return v.Compare(base) >= 0
	}

	base, ok := Parse(rng)
	if !ok {
		return false
	}
	return v.Compare(base) == 0
}
