// Package version holds build-time version information, injected via
// -ldflags at release build time.
package version

import (
	"fmt"
	"runtime"
)

// These are overridden at build time with:
//
//	go build -ldflags "-X github.com/tracemyride/routegen/pkg/version.BuildVersion=1.2.3 ..."
var (
	// BuildVersion is the semantic version of the build.
	BuildVersion = "0.1.0-dev"

	// BuildCommit is the git commit hash of the build.
	BuildCommit = "unknown"

	// BuildDate is the RFC3339 timestamp of the build.
	BuildDate = "unknown"
)

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("routegen-mcp-server %s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}

// Info returns build-time version information as a map.
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
		"commit":     BuildCommit,
		"build_date": BuildDate,
	}
}
