// SPDX-License-Identifier: MIT

// Package version holds build-time identifiers populated via ldflags.
package version

var (
	// Version is the stagelinq-cache release version.
	Version = "0.1.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the standard "version (commit: x, built: y)" banner.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
