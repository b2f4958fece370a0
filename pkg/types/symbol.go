package types

import (
	"encoding/hex"
	"errors"
	"time"

	"lukechampine.com/blake3"
)

// SymbolKind represents the kind of code entity a symbol describes.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
)

// SymbolID is a deterministic identifier for a symbol, derived from the
// owning file path, the symbol's qualified name and its kind. Re-parsing an
// unchanged file reproduces identical ids, so references held by other files
// stay valid across incremental updates without a rewrite pass.
type SymbolID string

// NewSymbolID derives the id for a symbol. path must be relative to the
// project root so the id is stable regardless of where the project lives.
func NewSymbolID(path, qualified string, kind SymbolKind) SymbolID {
	h := blake3.New(16, nil)
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(qualified))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(kind))
	return SymbolID(hex.EncodeToString(h.Sum(nil)))
}

// Position is a 1-indexed line/column location in source text.
type Position struct {
	Line   int
	Column int
}

// Span is a source range from Start to End, inclusive.
type Span struct {
	Start Position
	End   Position
}

// Contains reports whether other lies entirely within the span.
func (s Span) Contains(other Span) bool {
	if other.Start.Line < s.Start.Line || other.End.Line > s.End.Line {
		return false
	}
	if other.Start.Line == s.Start.Line && other.Start.Column < s.Start.Column {
		return false
	}
	if other.End.Line == s.End.Line && other.End.Column > s.End.Column {
		return false
	}
	return true
}

// Symbol is a named code entity with a source location. Symbols nest into a
// containment forest (methods under a type, fields under a struct); the
// parent link always points at a symbol in the same file and the relation is
// acyclic by construction.
type Symbol struct {
	ID        SymbolID
	Name      string
	Qualified string // Receiver.Name for members, Name otherwise
	Kind      SymbolKind
	Parent    string // qualified name of the containing symbol, "" at top level
	ParentID  SymbolID

	FileID   int64
	FilePath string

	Signature string
	Doc       string
	Span      Span

	// Children is populated on Tree snapshots only; storage queries return
	// symbols flat.
	Children []*Symbol
}

// Validate checks the invariants every stored symbol must satisfy.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}
	if s.Qualified == "" {
		return errors.New("symbol qualified name is required")
	}
	switch s.Kind {
	case KindFunction, KindMethod, KindClass, KindStruct, KindInterface,
		KindType, KindConst, KindVar, KindField:
	default:
		return errors.New("invalid symbol kind")
	}
	if s.Span.Start.Line <= 0 || s.Span.End.Line < s.Span.Start.Line {
		return errors.New("invalid symbol span")
	}
	return nil
}

// FileInfo describes one indexed file.
type FileInfo struct {
	ID       int64
	Path     string // relative to project root
	Language string
	Hash     string // hex-encoded blake3 of the file content
	ModTime  time.Time

	// Symbols lists the ids of the file's top-level symbols.
	Symbols []SymbolID
}

// ContentHash computes the hash recorded in FileInfo.Hash.
func ContentHash(src []byte) string {
	sum := blake3.Sum256(src)
	return hex.EncodeToString(sum[:])
}
