// Package version carries build metadata, set with
// -ldflags "-X plus-ev-alerts/internal/version.Version=...".
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on one line per field.
func String() string {
	return "version: " + Version + "\ncommit: " + Commit + "\nbuilt: " + BuildDate + "\ngo: " + runtime.Version() + "\n"
}
