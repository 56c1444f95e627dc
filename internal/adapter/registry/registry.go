// Package registry maps source paths to the adapter that owns them,
// grounded on spec.md §9's "Path-based dispatch" design note: an
// earlier content-sniffing design let the Aider markdown parser claim
// Claude Code JSONL files, so ownership is now exclusively path-pattern
// based. At startup two adapters declaring the identical pattern string
// are rejected; patterns that differ as strings but match the same
// paths are not detected.
package registry

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nstogner/lore/internal/adapter"
)

// Registry holds the enabled adapters and dispatches paths to them.
type Registry struct {
	adapters []adapter.Adapter
}

// New builds a registry from enabled, validating that no two adapters
// declare the same file pattern string. Distinct patterns that overlap
// (e.g. "**/*.json" and "**/session.json") are accepted.
func New(enabled []adapter.Adapter) (*Registry, error) {
	seen := map[string]string{}
	for _, a := range enabled {
		info := a.Info()
		for _, pat := range info.FilePatterns {
			if owner, ok := seen[pat]; ok {
				return nil, fmt.Errorf("registry: pattern %q claimed by both %s and %s", pat, owner, info.Name)
			}
			seen[pat] = info.Name
		}
	}
	return &Registry{adapters: enabled}, nil
}

// Adapters returns the enabled adapters in registration order.
func (r *Registry) Adapters() []adapter.Adapter {
	return r.adapters
}

// Match returns the adapter owning path, or nil if none claims it.
// Each adapter's Matches decides ownership, in registration order; the
// declared glob patterns are not consulted here (an adapter may own a
// path its patterns don't literally cover, e.g. extensionless files).
func (r *Registry) Match(path string) adapter.Adapter {
	for _, a := range r.adapters {
		if a.Matches(path) {
			return a
		}
	}
	return nil
}

// WatchRoots aggregates every enabled adapter's watch roots, de-duplicated.
func (r *Registry) WatchRoots() ([]string, error) {
	seen := map[string]bool{}
	var roots []string
	for _, a := range r.adapters {
		rs, err := a.WatchRoots()
		if err != nil {
			return nil, fmt.Errorf("registry: watch roots for %s: %w", a.Info().Name, err)
		}
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roots = append(roots, r)
			}
		}
	}
	return roots, nil
}

// Source pairs a source path with the adapter that owns it.
type Source struct {
	Path    string
	Adapter adapter.Adapter
}

// FindAll enumerates every enabled adapter's current sources.
func (r *Registry) FindAll() ([]Source, error) {
	var out []Source
	for _, a := range r.adapters {
		paths, err := a.FindSources()
		if err != nil {
			return nil, fmt.Errorf("registry: find sources for %s: %w", a.Info().Name, err)
		}
		for _, p := range paths {
			out = append(out, Source{Path: p, Adapter: a})
		}
	}
	return out, nil
}

// globMatch reports whether path matches a file pattern under
// doublestar semantics.
func globMatch(pattern, path string) bool {
	ok, _ := doublestar.Match(pattern, path)
	return ok
}

// GlobMatch exports globMatch for adapter packages.
func GlobMatch(pattern, path string) bool { return globMatch(pattern, path) }
