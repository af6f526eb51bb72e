package runner

import (
	"os"
	"strings"
)

// queryLocale is forced onto query commands so their output does not depend
// on the user's language.
const queryLocale = "C"

// Environments holds the two environment profiles commands run under.
//
// Query commands get a neutral locale because their output is split into
// lines and counted. Install commands keep the user's native environment so
// prompts and messages show up in the user's language.
type Environments struct {
	Query   []string
	Install []string
}

// NewEnvironments derives both profiles from base.
func NewEnvironments(base []string) Environments {
	install := make([]string, len(base))
	copy(install, base)

	return Environments{
		Query:   setEnv(base, "LC_ALL", queryLocale),
		Install: install,
	}
}

// DefaultEnvironments derives both profiles from the current process.
func DefaultEnvironments() Environments {
	return NewEnvironments(os.Environ())
}

// setEnv returns a copy of env with every existing key entry replaced by a
// single key=value at the end.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+value)
}

// Lookup returns the value of key in env.
func Lookup(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}
