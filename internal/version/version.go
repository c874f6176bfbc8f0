// Package version holds the build version and comparison helpers.
package version

import "golang.org/x/mod/semver"

// Version is the clutter release version. Overridden at build time with
// -ldflags "-X github.com/clutter-sh/clutter/internal/version.Version=...".
var Version = "0.3.0"

// Canonical returns the version in canonical semver form with a leading v.
func Canonical() string {
	v := Version
	if len(v) == 0 || v[0] != 'v' {
		v = "v" + v
	}
	if semver.IsValid(v) {
		return semver.Canonical(v)
	}
	return v
}

// OlderThan reports whether the running build is older than other. Invalid
// version strings compare as not-older so doctor does not warn on dev
// builds.
func OlderThan(other string) bool {
	a := Canonical()
	b := other
	if len(b) == 0 {
		return false
	}
	if b[0] != 'v' {
		b = "v" + b
	}
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return false
	}
	return semver.Compare(a, b) < 0
}
