// Package version holds the build-time version variables for the cdoc binary.
// The zero values ("dev", "none", "unknown") are used for local builds.
// GoReleaser injects the real values via -ldflags at release time.
package version

import "fmt"

// These variables are overridden by GoReleaser ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the formatted version string printed by cdoc version.
func Info() string {
	return fmt.Sprintf(
		"cdoc version %s\ncommit: %s\nbuilt: %s\n",
		Version,
		Commit,
		Date,
	)
}

// UserAgent identifies cdoc in outbound API calls.
func UserAgent() string {
	return "cloud-doctor/" + Version
}
