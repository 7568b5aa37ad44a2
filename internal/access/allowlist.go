// Package access implements the optional peer-address allow list
// (SPEC_FULL.md §10). This is address-based connection filtering, not
// authentication — it does not contradict spec.md's "does not authenticate
// clients" non-goal.
package access

import (
	"fmt"

	"github.com/gobwas/glob"
)

// AllowList matches a peer address string (e.g. "192.168.1.7:54321")
// against a set of glob patterns. An empty AllowList allows everything.
type AllowList struct {
	patterns []glob.Glob
}

// New compiles patterns. An empty or nil slice produces an AllowList that
// allows every address.
func New(patterns []string) (*AllowList, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("access: invalid allow pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	return &AllowList{patterns: compiled}, nil
}

// Allowed reports whether addr matches any configured pattern, or true
// unconditionally if no patterns were configured.
func (a *AllowList) Allowed(addr string) bool {
	if len(a.patterns) == 0 {
		return true
	}
	for _, g := range a.patterns {
		if g.Match(addr) {
			return true
		}
	}
	return false
}
