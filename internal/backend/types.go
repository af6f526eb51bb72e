package backend

import "strings"

// Kind identifies the logical update source a backend serves.
type Kind int

const (
	SystemPackages Kind = iota
	UserRepoPackages
	SandboxedApps
)

// String returns the logical source name.
func (k Kind) String() string {
	switch k {
	case SystemPackages:
		return "system"
	case UserRepoPackages:
		return "user-repo"
	case SandboxedApps:
		return "sandboxed-app"
	default:
		return "unknown"
	}
}

// Source is one row of the catalog: a backend and the commands that drive it.
type Source struct {
	ID      string // "pacman", "aur" or "flatpak"
	Kind    Kind
	Label   string
	Query   []string // read-only listing of pending updates
	Install []string // applies updates, may prompt
	Enabled bool
}

// CommandLine renders argv the way it is echoed into the terminal.
func CommandLine(argv []string) string {
	return strings.Join(argv, " ")
}

func cloneArgv(argv []string) []string {
	if argv == nil {
		return nil
	}
	out := make([]string, len(argv))
	copy(out, argv)
	return out
}
