// Package version exposes build metadata stamped at link time.
package version

import "fmt"

// Set via -ldflags at release build time. The defaults describe a
// source build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the bare version string, e.g. "1.2.0" or "dev".
func Short() string {
	return Version
}

// Map returns the build metadata as a flat map for health endpoints.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}

// Info returns a one-line description for --version output.
func Info() string {
	return fmt.Sprintf("treeline %s (commit %s, built %s)", Version, Commit, Date)
}
