package types

import "time"

// IndexStage names the pipeline stage a per-file error came from.
type IndexStage string

const (
	StageRead    IndexStage = "read"
	StageParse   IndexStage = "parse"
	StageStore   IndexStage = "store"
	StageEmbed   IndexStage = "embed"
	StageUnknown IndexStage = "unknown"
)

// IndexError records one non-fatal per-file failure. Errors never abort a
// whole-project scan; they accumulate here instead.
type IndexError struct {
	Path    string
	Stage   IndexStage
	Message string
}

// IndexProgress summarizes one Index or Reindex run.
type IndexProgress struct {
	FilesTotal     int
	FilesProcessed int
	FilesSkipped   int // unchanged content hash
	SymbolsIndexed int
	Errors         []IndexError
	Duration       time.Duration
}

// Status describes the current state of the index.
type Status struct {
	IndexedFiles      int
	IndexedSymbols    int
	IndexedReferences int

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	IndexedVectors      int

	LastIndexed  time.Time
	StorageBytes int64
}

// Tree is a read-only snapshot of the whole index: every file with its
// symbols nested into the containment forest. Used for whole-index scans
// such as usage stats and entry/leaf detection.
type Tree struct {
	Files []FileNode
}

// FileNode pairs a file with its top-level symbols (children nested).
type FileNode struct {
	File    FileInfo
	Symbols []*Symbol
}

// Walk calls fn for every symbol in the tree, parents before children.
func (t *Tree) Walk(fn func(*Symbol)) {
	var visit func([]*Symbol)
	visit = func(syms []*Symbol) {
		for _, s := range syms {
			fn(s)
			visit(s.Children)
		}
	}
	for i := range t.Files {
		visit(t.Files[i].Symbols)
	}
}

// RefSite is one location where a reference occurs. Origin names the
// symbol at the other end: the enclosing symbol when listing references
// to a target, the referenced target when listing references from an
// origin. May be "" when that symbol is not in the index.
type RefSite struct {
	Path   string
	Line   int
	Origin string
}

// SymbolUsage aggregates the references pointing at one symbol.
type SymbolUsage struct {
	SymbolID SymbolID
	Name     string
	Count    int64
	Sites    []RefSite
}
