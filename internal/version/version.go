package version

import "fmt"

//nolint:gochecknoglobals // Overridden by the linker.
var (
	// Version is the semantic version of the orchestrator.
	Version = "0.1.0"
	// Commit is the short git SHA of the build.
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns only the semantic version.
func Short() string {
	return Version
}

// Full returns the version with commit and build time, as printed by `oneclick version`.
func Full() string {
	return fmt.Sprintf("oneclick %s (commit %s, built %s)", Version, Commit, BuildTime)
}
