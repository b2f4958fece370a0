package analyzer

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// Analyzer is the per-language extraction contract. Implementations turn
// raw source text into symbols and references; they perform no resolution
// and all spans index into the given text.
type Analyzer interface {
	// Language returns the language tag this analyzer handles.
	Language() string

	// ExtractSymbols returns the symbols defined in src. Nesting is
	// expressed through Symbol.Parent (qualified name of the container);
	// ids and file bindings are assigned later by the indexer.
	ExtractSymbols(src []byte) ([]types.Symbol, error)

	// ExtractReferences returns the outgoing references found in src.
	// Origin symbols are matched by span containment later.
	ExtractReferences(src []byte) ([]types.Reference, error)
}

// Registry maps language tags to analyzers. Lookup never fails: when no
// specialized analyzer is installed the generic heuristic analyzer is
// returned, so indexing degrades to lower-fidelity extraction instead of
// hard-failing on a missing language plugin.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
	fallback  Analyzer
}

// NewRegistry returns a registry with the built-in analyzers installed.
func NewRegistry() *Registry {
	r := &Registry{
		analyzers: make(map[string]Analyzer),
		fallback:  NewGeneric(),
	}
	r.Register(NewGo())
	return r
}

// Register installs an analyzer for its language tag, replacing any prior
// registration.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[a.Language()] = a
}

// Get returns the analyzer for a language tag, falling back to the generic
// analyzer when none is registered.
func (r *Registry) Get(language string) Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.analyzers[language]; ok {
		return a
	}
	return r.fallback
}

// Languages returns the registered language tags.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.analyzers))
	for tag := range r.analyzers {
		tags = append(tags, tag)
	}
	return tags
}

// extensionLanguages maps file extensions to language tags. Files with an
// unlisted extension still index through the generic analyzer under the
// "generic" tag.
var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".rb":   "ruby",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".rs":   "rust",
	".php":  "php",
}

// DetectLanguage returns the language tag for a file path.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return "generic"
}

// IsSourceFile reports whether the path looks like source code worth
// indexing at all.
func IsSourceFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := extensionLanguages[ext]; ok {
		return true
	}
	switch ext {
	case ".kt", ".swift", ".scala", ".cs", ".ex", ".exs", ".lua", ".pl", ".sh":
		return true
	}
	return false
}
