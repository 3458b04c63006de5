package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	CLIName    = "lingo"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies lingo to upstream providers.
func UserAgent() string {
	return "lingo-wallet/" + CLIVersion
}
