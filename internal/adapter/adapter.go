// Package adapter defines the contract every tool-specific parser
// implements (spec.md §4.2) and the dispatch registry the daemon and
// engine use to route a source path to its owning adapter.
package adapter

import (
	"errors"
	"fmt"

	"github.com/nstogner/lore/internal/model"
)

// ErrNotOwned is returned by Parse when called on a path the adapter
// does not claim, which indicates a registry routing bug rather than a
// malformed source.
var ErrNotOwned = errors.New("adapter: path not owned by this adapter")

// Info describes an adapter for display and registry bookkeeping.
type Info struct {
	Name         string
	Description  string
	FilePatterns []string
}

// ParsedSession is the canonical pair an adapter produces from one
// source file. A single source may yield more than one session (a
// forked or resumed conversation), hence adapters return a slice.
type ParsedSession struct {
	Session  model.Session
	Messages []model.Message

	// Completed reports whether the native format itself marks this
	// session as finished (a terminal record, an explicit "ended"
	// field, a closed conversation marker), rather than lore having to
	// infer completion from inactivity.
	Completed bool
}

// Adapter is the shared, stateless contract every tool-specific parser
// implements. Adapters do not touch the store and remember nothing
// between calls; all dedup, cursoring and finalisation bookkeeping is
// the ingestion engine's job.
type Adapter interface {
	// Info describes the adapter: its name, a human description, and
	// the path patterns it owns.
	Info() Info

	// IsAvailable reports whether this tool appears installed or used
	// on the current machine (its config or data directory exists).
	IsAvailable() bool

	// WatchRoots lists directories the daemon should recursively watch
	// on this adapter's behalf. Never the whole home directory.
	WatchRoots() ([]string, error)

	// FindSources enumerates the adapter's current source files, used
	// by the periodic scan and the initial bootstrap.
	FindSources() ([]string, error)

	// Matches reports whether this adapter owns path. Path-based
	// dispatch is authoritative: the registry rejects two adapters
	// claiming the same pattern at startup.
	Matches(path string) bool

	// Parse reads path in full and returns one canonical pair per
	// session found in it. Parse must be best-effort: a malformed
	// record is skipped, never fatal to the rest of the file.
	Parse(path string) ([]ParsedSession, error)
}

// NotOwned wraps ErrNotOwned with the offending path, for adapters to
// return from Parse when handed a path outside their patterns.
func NotOwned(path string) error {
	return fmt.Errorf("%s: %w", path, ErrNotOwned)
}
