package types

import "fmt"

// ParseError is a per-file extraction failure. It is non-fatal: the indexer
// records it in IndexProgress.Errors and moves on to the next file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
