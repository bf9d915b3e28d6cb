// Package build holds build-time information.
package build

// Version is the application version. It defaults to "dev" and is
// overwritten by linker flags at release build time.
var Version = "dev"

// Commit is the git commit whiz was built from, set via linker flags.
var Commit = "none"

// Date is the build timestamp, set via linker flags.
var Date = "unknown"
