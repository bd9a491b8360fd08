// Package version holds the build identity stamped into the cardwatcher
// binary via -ldflags at release time.
package version

var (
	// Version is the cardwatcher release version.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// BuildDate is when the binary was built.
	BuildDate = "unknown"
)
