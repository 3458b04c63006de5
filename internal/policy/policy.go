// Package policy gates which commands an operator lets a deployment run.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
)

// alwaysAllowed stay reachable under any allowlist so a locked-down
// binary can still describe itself.
var alwaysAllowed = []string{"version", "schema"}

// CheckCommandAllowed rejects commandPath unless it, or a parent group,
// appears in allowlist. An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, name := range alwaysAllowed {
		if path == name {
			return nil
		}
	}
	for _, allowed := range allowlist {
		a := normalize(allowed)
		if a == "" {
			continue
		}
		if path == a || strings.HasPrefix(path, a+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command "+path+" blocked by --enable-commands policy")
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
