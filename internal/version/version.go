// Package version provides build version information for the application.
// Kept separate so cli and notification packages can both import it without
// cycles.
package version

// Version is the build version string, set by ldflags during release builds.
var Version = "v1.1.0-dev"

// BuildTime is the build timestamp, set by ldflags.
var BuildTime = "unknown"
