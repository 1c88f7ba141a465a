// Package upchain provides version information for the upchain explorer.
package upchain

import (
	"fmt"
	"runtime"
)

// Version is the current release version.
const Version = "0.1.0"

// VersionString returns the version line printed by the CLI.
func VersionString() string {
	return fmt.Sprintf("upchain %s (%s %s/%s)",
		Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
