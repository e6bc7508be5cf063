// Package version holds build-time version information.
package version

// Version is the application version, set at build time via ldflags.
var Version = "dev"

// Commit is the git commit hash, set at build time via ldflags.
var Commit = "unknown"
