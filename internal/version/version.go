// Package version reports the build identity of splatgeo. The variables are
// set at link time with -ldflags "-X".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the one-line version banner printed by the CLI.
func String() string {
	return fmt.Sprintf("splatgeo %s (%s, built %s)", Version, GitSHA, BuildTime)
}

// Generator names the producer written into georeference documents and
// tilesets.
func Generator() string {
	return "splatgeo " + Version
}
