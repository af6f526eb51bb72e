// Package critical decides which changed packages warrant a reboot.
package critical

import (
	"slices"
	"strings"
)

// defaultExact are packages whose update leaves the running system on stale
// code until a reboot.
var defaultExact = []string{
	"systemd",
	"systemd-libs",
	"systemd-sysvcompat",
	"glibc",
	"linux-api-headers",
	"mkinitcpio",
	"mkinitcpio-busybox",
	"mkinitcpio-openswap",
	"pacman",
	"util-linux",
	"dbus",
}

// defaultPrefixes match kernels (linux, linux-lts, linux-zen, linux-firmware)
// and driver stacks.
var defaultPrefixes = []string{
	"linux",
	"nvidia",
}

// Classifier matches package names against exact names and name prefixes.
type Classifier struct {
	exact    map[string]bool
	prefixes []string
}

// Default returns the built-in classifier.
func Default() *Classifier {
	return New(nil, nil)
}

// New returns a classifier with the built-in rules plus the given extra
// names and prefixes. Extras can only widen the set.
func New(extraExact, extraPrefixes []string) *Classifier {
	c := &Classifier{exact: make(map[string]bool)}
	for _, name := range append(slices.Clone(defaultExact), extraExact...) {
		if name = strings.TrimSpace(name); name != "" {
			c.exact[name] = true
		}
	}
	for _, p := range append(slices.Clone(defaultPrefixes), extraPrefixes...) {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(c.prefixes, p) {
			c.prefixes = append(c.prefixes, p)
		}
	}
	return c
}

// IsCritical reports whether pkg is reboot-relevant.
func (c *Classifier) IsCritical(pkg string) bool {
	if c.exact[pkg] {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(pkg, p) {
			return true
		}
	}
	return false
}

// Classify returns the critical names in pkgs, deduplicated and in input
// order.
func (c *Classifier) Classify(pkgs []string) []string {
	var hits []string
	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		if seen[pkg] || !c.IsCritical(pkg) {
			continue
		}
		seen[pkg] = true
		hits = append(hits, pkg)
	}
	return hits
}

// Exact returns the exact-match names, sorted.
func (c *Classifier) Exact() []string {
	names := make([]string, 0, len(c.exact))
	for name := range c.exact {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Prefixes returns the prefix rules in the order they were added.
func (c *Classifier) Prefixes() []string {
	return slices.Clone(c.prefixes)
}
