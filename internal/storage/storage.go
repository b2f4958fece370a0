package storage

import (
	"context"
	"time"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// Storage defines the persistence interface for the code index
type Storage interface {
	// File operations
	//
	// UpsertFile is the single write path: it replaces a file's record,
	// symbols, and references in one transaction, so a crash mid-index
	// never leaves a file half-written.
	UpsertFile(ctx context.Context, file types.FileInfo, symbols []types.Symbol, refs []types.Reference) (int64, error)
	GetFile(ctx context.Context, path string) (types.FileInfo, error)
	GetFileByID(ctx context.Context, id int64) (types.FileInfo, error)
	ListFiles(ctx context.Context) ([]types.FileInfo, error)
	DeleteFile(ctx context.Context, path string) error

	// Symbol operations
	GetSymbol(ctx context.Context, id types.SymbolID) (types.Symbol, error)
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]types.Symbol, error)
	FindSymbolsByName(ctx context.Context, name string) ([]types.Symbol, error)
	SearchSymbols(ctx context.Context, query string, limit int) ([]SymbolMatch, error)
	SearchFiles(ctx context.Context, pattern string, limit int) ([]types.FileInfo, error)

	// Reference and call graph operations
	//
	// References are resolved by name at query time: a reference joins to
	// symbols either through its stored target id or, when unresolved,
	// through target_name matching name or qualified_name.
	GetCallers(ctx context.Context, id types.SymbolID) ([]types.Symbol, error)
	GetCallees(ctx context.Context, id types.SymbolID) ([]types.Symbol, error)
	GetReferencesTo(ctx context.Context, id types.SymbolID) ([]types.RefSite, error)
	GetReferencesFrom(ctx context.Context, id types.SymbolID) ([]types.RefSite, error)
	GetReferenceCount(ctx context.Context, id types.SymbolID) (int64, error)
	ListCallEdges(ctx context.Context) ([]CallEdge, error)
	ListCallables(ctx context.Context) ([]types.Symbol, error)

	// Index-wide operations
	GetTree(ctx context.Context) (types.Tree, error)
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// CallEdge is one resolved edge of the call graph
type CallEdge struct {
	From types.SymbolID
	To   types.SymbolID
}

// SymbolMatch is a symbol with its full-text relevance score
type SymbolMatch struct {
	Symbol types.Symbol
	Score  float64
}

// Stats summarizes the persisted index
type Stats struct {
	Files       int64
	Symbols     int64
	References  int64
	LastIndexed time.Time
}
