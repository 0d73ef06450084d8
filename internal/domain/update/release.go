package update

import (
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"
)

// Release is a published release of an application on Flathub.
type Release struct {
	// Version is the upstream version string, e.g. "3.0.4".
	Version string
	// Timestamp is the release date.
	Timestamp time.Time
}

// NewerThan reports whether the release version is greater than current.
// An empty current version always yields true.
func (r *Release) NewerThan(current string) bool {
	if r == nil {
		return false
	}

	if strings.TrimSpace(current) == "" {
		return true
	}

	return CompareVersions(r.Version, current) > 0
}

// CompareVersions returns -1, 0 or 1 depending on whether a is lower than,
// equal to or greater than b. Versions are parsed as semantic versions where
// possible; otherwise dot-separated numeric components are compared with
// missing components counting as zero.
func CompareVersions(a, b string) int {
	av, aErr := semver.ParseTolerant(a)
	bv, bErr := semver.ParseTolerant(b)

	if aErr == nil && bErr == nil {
		return av.Compare(bv)
	}

	return compareDotted(a, b)
}

// compareDotted compares versions component by component. Non-numeric
// components are compared lexically.
func compareDotted(a, b string) int {
	aParts := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bParts := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")

	length := max(len(aParts), len(bParts))

	for i := 0; i < length; i++ {
		ap, bp := "0", "0"
		if i < len(aParts) {
			ap = aParts[i]
		}

		if i < len(bParts) {
			bp = bParts[i]
		}

		if c := compareComponent(ap, bp); c != 0 {
			return c
		}
	}

	return 0
}

func compareComponent(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)

	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(a, b)
}
