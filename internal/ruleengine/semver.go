package ruleengine

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion parses a strict semantic version. A leading "v" is tolerated
// because release tags commonly carry it; everything else must follow semver 2.0.
func parseVersion(s string) (*semver.Version, bool) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return nil, false
	}
	return v, true
}

// compareVersions orders two version strings using semver precedence:
// build metadata is ignored and a pre-release sorts before its release.
// The boolean is false when either side is not a valid version.
func compareVersions(a, b Value) (int, bool) {
	as, ok := a.AsString()
	if !ok {
		return 0, false
	}
	bs, ok := b.AsString()
	if !ok {
		return 0, false
	}

	av, ok := parseVersion(as)
	if !ok {
		return 0, false
	}
	bv, ok := parseVersion(bs)
	if !ok {
		return 0, false
	}
	return av.Compare(bv), true
}
