// Package linejson provides the shared line-scanning helper used by
// every line-delimited JSON adapter (Claude Code, Codex, Aider's
// append-only form). Grounded on the line reader in agentsview's
// Claude Code parser: a bufio.Scanner with an enlarged buffer, since
// a single line in these logs can carry an entire tool result.
package linejson

import (
	"bufio"
	"io"
)

const (
	initialBufSize = 64 * 1024
	maxLineSize    = 64 * 1024 * 1024
)

// Lines scans r line by line, handing each non-empty line to fn. fn's
// error is recorded but never stops the scan — a single malformed
// line must not abort the rest of the file (spec.md §4.2 "Skips
// malformed records... without aborting").
func Lines(r io.Reader, fn func(line string) error) ([]error, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialBufSize), maxLineSize)

	var softErrs []error
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			softErrs = append(softErrs, err)
		}
	}
	if err := sc.Err(); err != nil {
		return softErrs, err
	}
	return softErrs, nil
}
