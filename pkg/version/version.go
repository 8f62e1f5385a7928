// Package version holds build-time version info for ocistore.
// Set via main using Set(), read from anywhere.
package version

import "fmt"

// Build information, populated by Set() at startup.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Set stores build-time version info. Call once from main.
func Set(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

// Version returns the build version string.
func Version() string { return version }

// Commit returns the build commit hash.
func Commit() string { return commit }

// BuildDate returns the build date string.
func BuildDate() string { return buildDate }

// String returns a one-line summary of the build information.
func String() string {
	return fmt.Sprintf("ocistore %s (commit %s, built %s)", version, commit, buildDate)
}
