// Package backend holds the static catalog of update backends: the system
// package manager, the AUR helper and the Flatpak updater.
package backend

import (
	"fmt"
	"sync"
)

// Backend IDs, in catalog order.
const (
	Pacman  = "pacman"
	AUR     = "aur"
	Flatpak = "flatpak"
)

// Override replaces parts of a catalog row. Empty fields keep the default.
type Override struct {
	Label   string
	Query   []string
	Install []string
}

// defaultSources is the catalog in its fixed order. System packages come first
// so library updates land before AUR builds that link against them.
func defaultSources() []Source {
	return []Source{
		{
			ID:      Pacman,
			Kind:    SystemPackages,
			Label:   "Pacman",
			Query:   []string{"checkupdates"},
			Install: []string{"sudo", "pacman", "-Syu"},
			Enabled: true,
		},
		{
			ID:      AUR,
			Kind:    UserRepoPackages,
			Label:   "AUR",
			Query:   []string{"yay", "-Qua"},
			Install: []string{"yay", "-Sua"},
			Enabled: true,
		},
		{
			ID:    Flatpak,
			Kind:  SandboxedApps,
			Label: "Flatpak",
			Query: []string{"flatpak", "list", "--updates"},
			// -y and --noninteractive keep flatpak from hanging on prompts.
			Install: []string{"flatpak", "update", "-y", "--noninteractive"},
			Enabled: true,
		},
	}
}

// Catalog is the ordered set of backends. Only the enabled flag may change
// after construction.
type Catalog struct {
	mu      sync.RWMutex
	sources []Source
}

// NewCatalog builds the default catalog with the given overrides applied.
func NewCatalog(overrides map[string]Override) (*Catalog, error) {
	sources := defaultSources()
	for id, ov := range overrides {
		idx := indexOf(sources, id)
		if idx < 0 {
			return nil, fmt.Errorf("unknown backend %q (want one of %s, %s, %s)", id, Pacman, AUR, Flatpak)
		}
		if ov.Label != "" {
			sources[idx].Label = ov.Label
		}
		if len(ov.Query) > 0 {
			sources[idx].Query = cloneArgv(ov.Query)
		}
		if len(ov.Install) > 0 {
			sources[idx].Install = cloneArgv(ov.Install)
		}
	}
	return &Catalog{sources: sources}, nil
}

// Default returns the catalog without overrides.
func Default() *Catalog {
	return &Catalog{sources: defaultSources()}
}

// IDs returns every backend ID in catalog order.
func IDs() []string {
	return []string{Pacman, AUR, Flatpak}
}

// SetEnabled toggles a backend. It returns an error for unknown IDs.
func (c *Catalog) SetEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := indexOf(c.sources, id)
	if idx < 0 {
		return fmt.Errorf("unknown backend %q", id)
	}
	c.sources[idx].Enabled = enabled
	return nil
}

// All returns a copy of every source in catalog order.
func (c *Catalog) All() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySources(c.sources, false)
}

// Enabled returns a copy of the enabled sources in catalog order.
func (c *Catalog) Enabled() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySources(c.sources, true)
}

// Lookup returns the source with the given ID.
func (c *Catalog) Lookup(id string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := indexOf(c.sources, id)
	if idx < 0 {
		return Source{}, false
	}
	return copySources(c.sources[idx:idx+1], false)[0], true
}

func copySources(in []Source, enabledOnly bool) []Source {
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if enabledOnly && !s.Enabled {
			continue
		}
		s.Query = cloneArgv(s.Query)
		s.Install = cloneArgv(s.Install)
		out = append(out, s)
	}
	return out
}

func indexOf(sources []Source, id string) int {
	for i, s := range sources {
		if s.ID == id {
			return i
		}
	}
	return -1
}
