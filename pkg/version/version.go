// Package version carries build identification, overridable at link time.
package version

var (
	// Version is the semantic version of this build.
	Version = "0.1.0"

	// Commit is the VCS revision, set via -ldflags.
	Commit = "unknown"

	// BuildDate is the build timestamp, set via -ldflags.
	BuildDate = "unknown"
)
