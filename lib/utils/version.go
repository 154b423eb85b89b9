package utils

import (
	"github.com/Masterminds/semver/v3"
)

// IsUpdateAvailable reports whether latest names a release strictly newer
// than current. Builds identified by a commit hash instead of a tag never
// count as outdated.
func IsUpdateAvailable(current string, latest string) bool {
	currentVersion, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	latestVersion, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	return latestVersion.GreaterThan(currentVersion)
}
