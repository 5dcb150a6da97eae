// Package version provides build version information for relaybot.
// These variables are set at build time via ldflags.
package version

import "fmt"

// Build information variables, injected with e.g.
// go build -ldflags "-X relaybot/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("relaybot %s (commit %s, built %s)", Version, Commit, Date)
}
