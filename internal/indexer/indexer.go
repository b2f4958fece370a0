package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas/codeatlas/internal/analyzer"
	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/embedder"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/logger"
	"github.com/codeatlas/codeatlas/internal/searcher"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/vecindex"
	"github.com/codeatlas/codeatlas/internal/watcher"
	"github.com/codeatlas/codeatlas/pkg/types"
)

// Indexer coordinates the pipeline: discover -> analyze -> store -> embed.
// It owns the storage, vector index, and searcher for one project root.
type Indexer struct {
	cfg      *config.Config
	store    storage.Storage
	registry *analyzer.Registry
	embedder embedder.Embedder
	vectors  *vecindex.Index
	searcher *searcher.Searcher
	log      *slog.Logger
}

// New wires an Indexer from its parts. emb and vectors may be nil to run
// without the semantic search leg.
func New(cfg *config.Config, store storage.Storage, emb embedder.Embedder, vectors *vecindex.Index) *Indexer {
	idx := &Indexer{
		cfg:      cfg,
		store:    store,
		registry: analyzer.NewRegistry(),
		embedder: emb,
		vectors:  vectors,
		log:      logger.ForComponent("indexer"),
	}
	idx.searcher = searcher.New(store, vectors, emb, searcher.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		CacheSize:    cfg.Search.CacheSize,
		CacheTTL:     cfg.Search.CacheTTL.Std(),
		RRFConstant:  cfg.Search.RRFConstant,
	})
	return idx
}

// Store exposes the storage layer for graph queries
func (idx *Indexer) Store() storage.Storage {
	return idx.store
}

// Searcher exposes the query side
func (idx *Indexer) Searcher() *searcher.Searcher {
	return idx.searcher
}

// Index walks the whole project: new and changed files are re-analyzed,
// unchanged files are skipped by content hash, and files that vanished
// from disk are removed from the index. Per-file failures are recorded in
// the returned progress, never propagated as errors.
func (idx *Indexer) Index(ctx context.Context) (*types.IndexProgress, error) {
	start := time.Now()

	files, err := discoverFiles(idx.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	idx.log.Info("indexing project", "root", idx.cfg.Root, "files", len(files))

	progress := &types.IndexProgress{FilesTotal: len(files)}
	var processed, skipped, symbols int32
	var mu sync.Mutex // guards progress.Errors

	workers := idx.cfg.Index.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	semaphore := make(chan struct{}, workers)

	for _, relPath := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			wasSkipped, symbolCount, ferr := idx.processFile(gctx, relPath, false)
			if ferr != nil {
				mu.Lock()
				progress.Errors = append(progress.Errors, toIndexError(relPath, ferr))
				mu.Unlock()
				if isEmbedFailure(ferr) {
					atomic.AddInt32(&processed, 1)
					atomic.AddInt32(&symbols, int32(symbolCount))
				}
				return nil
			}
			if wasSkipped {
				atomic.AddInt32(&skipped, 1)
			} else {
				atomic.AddInt32(&processed, 1)
				atomic.AddInt32(&symbols, int32(symbolCount))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := idx.pruneDeleted(ctx, files, progress); err != nil {
		return nil, err
	}
	if err := idx.flushVectors(); err != nil {
		mu.Lock()
		progress.Errors = append(progress.Errors, types.IndexError{
			Stage: types.StageEmbed, Message: err.Error(),
		})
		mu.Unlock()
	}
	idx.searcher.InvalidateCache()

	progress.FilesProcessed = int(processed)
	progress.FilesSkipped = int(skipped)
	progress.SymbolsIndexed = int(symbols)
	progress.Duration = time.Since(start)

	sortErrors(progress.Errors)
	idx.log.Info("indexing complete",
		"processed", progress.FilesProcessed,
		"skipped", progress.FilesSkipped,
		"symbols", progress.SymbolsIndexed,
		"errors", len(progress.Errors),
		"duration", progress.Duration)
	return progress, nil
}

// ReindexPaths refreshes a specific set of project-relative paths, as
// delivered by the watcher. Named paths are reprocessed even when their
// content hash is unchanged; paths that no longer exist on disk are
// removed from the index.
func (idx *Indexer) ReindexPaths(ctx context.Context, paths []string) (*types.IndexProgress, error) {
	start := time.Now()
	progress := &types.IndexProgress{FilesTotal: len(paths)}

	for _, relPath := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		relPath = filepath.ToSlash(relPath)

		if _, err := os.Stat(filepath.Join(idx.cfg.Root, relPath)); os.IsNotExist(err) {
			if err := idx.removeFile(ctx, relPath); err != nil {
				progress.Errors = append(progress.Errors, toIndexError(relPath, err))
			}
			continue
		}

		wasSkipped, symbolCount, err := idx.processFile(ctx, relPath, true)
		if err != nil {
			progress.Errors = append(progress.Errors, toIndexError(relPath, err))
			if isEmbedFailure(err) {
				progress.FilesProcessed++
				progress.SymbolsIndexed += symbolCount
			}
			continue
		}
		if wasSkipped {
			progress.FilesSkipped++
		} else {
			progress.FilesProcessed++
			progress.SymbolsIndexed += symbolCount
		}
	}

	if err := idx.flushVectors(); err != nil {
		progress.Errors = append(progress.Errors, types.IndexError{
			Stage: types.StageEmbed, Message: err.Error(),
		})
	}
	idx.searcher.InvalidateCache()

	progress.Duration = time.Since(start)
	sortErrors(progress.Errors)
	return progress, nil
}

// processFile runs one file through the pipeline. The returned bool
// reports a content-hash skip; the int is the number of symbols stored.
// force bypasses the hash skip for paths the caller named explicitly.
func (idx *Indexer) processFile(ctx context.Context, relPath string, force bool) (bool, int, error) {
	absPath := filepath.Join(idx.cfg.Root, relPath)

	src, err := os.ReadFile(absPath)
	if err != nil {
		return false, 0, stageError(types.StageRead, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, 0, stageError(types.StageRead, err)
	}

	hash := types.ContentHash(src)
	prevSymbols, unchanged, err := idx.previousState(ctx, relPath, hash)
	if err != nil {
		return false, 0, stageError(types.StageStore, err)
	}
	if unchanged && !force {
		return true, 0, nil
	}

	language := analyzer.DetectLanguage(relPath)
	a := idx.registry.Get(language)

	symbols, err := a.ExtractSymbols(src)
	if err != nil {
		return false, 0, stageError(types.StageParse, err)
	}
	refs, err := a.ExtractReferences(src)
	if err != nil {
		return false, 0, stageError(types.StageParse, err)
	}

	bindSymbols(relPath, symbols)
	bindReferences(symbols, refs)

	file := types.FileInfo{
		Path:     relPath,
		Language: language,
		Hash:     hash,
		ModTime:  info.ModTime(),
	}
	if _, err := idx.store.UpsertFile(ctx, file, symbols, refs); err != nil {
		return false, 0, stageError(types.StageStore, err)
	}

	if err := idx.embedSymbols(ctx, prevSymbols, symbols); err != nil {
		// The file is indexed and searchable by text; only the vector
		// leg is missing.
		return false, len(symbols), stageError(types.StageEmbed, err)
	}
	return false, len(symbols), nil
}

// previousState returns the previously stored symbol ids for a path and
// whether the stored content hash matches.
func (idx *Indexer) previousState(ctx context.Context, relPath, hash string) ([]types.SymbolID, bool, error) {
	prev, err := idx.store.GetFile(ctx, relPath)
	if err == storage.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if prev.Hash == hash {
		return nil, true, nil
	}

	old, err := idx.store.ListSymbolsByFile(ctx, prev.ID)
	if err != nil {
		return nil, false, err
	}
	ids := make([]types.SymbolID, len(old))
	for i, sym := range old {
		ids[i] = sym.ID
	}
	return ids, false, nil
}

// embedSymbols refreshes the vector index for one file: vectors for
// symbols that disappeared are dropped, current symbols are embedded in
// batches.
func (idx *Indexer) embedSymbols(ctx context.Context, prevIDs []types.SymbolID, symbols []types.Symbol) error {
	if idx.vectors == nil || idx.embedder == nil {
		return nil
	}

	current := make(map[types.SymbolID]bool, len(symbols))
	for _, sym := range symbols {
		current[sym.ID] = true
	}
	for _, id := range prevIDs {
		if !current[id] {
			idx.vectors.Remove(id)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = embedText(sym)
	}

	for start := 0; start < len(texts); start += embedder.MaxBatchSize {
		end := start + embedder.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := idx.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return err
		}
		for j, emb := range embeddings {
			if err := idx.vectors.Upsert(symbols[start+j].ID, emb.Vector); err != nil {
				return err
			}
		}
	}
	return nil
}

// embedText is the text a symbol contributes to the vector index: its
// identity, signature, and documentation.
func embedText(sym types.Symbol) string {
	parts := []string{string(sym.Kind), sym.Qualified}
	if sym.Signature != "" {
		parts = append(parts, sym.Signature)
	}
	if sym.Doc != "" {
		parts = append(parts, sym.Doc)
	}
	return strings.Join(parts, "\n")
}

// pruneDeleted removes index entries for files discovery no longer sees.
func (idx *Indexer) pruneDeleted(ctx context.Context, discovered []string, progress *types.IndexProgress) error {
	keep := make(map[string]bool, len(discovered))
	for _, path := range discovered {
		keep[path] = true
	}

	stored, err := idx.store.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, file := range stored {
		if keep[file.Path] {
			continue
		}
		if err := idx.removeFile(ctx, file.Path); err != nil {
			progress.Errors = append(progress.Errors, toIndexError(file.Path, err))
		}
	}
	return nil
}

// removeFile drops a file from storage and its vectors from the index.
func (idx *Indexer) removeFile(ctx context.Context, relPath string) error {
	file, err := idx.store.GetFile(ctx, relPath)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return stageError(types.StageStore, err)
	}

	if idx.vectors != nil {
		symbols, err := idx.store.ListSymbolsByFile(ctx, file.ID)
		if err != nil {
			return stageError(types.StageStore, err)
		}
		for _, sym := range symbols {
			idx.vectors.Remove(sym.ID)
		}
	}

	if err := idx.store.DeleteFile(ctx, relPath); err != nil {
		return stageError(types.StageStore, err)
	}
	idx.log.Debug("removed deleted file", "path", relPath)
	return nil
}

func (idx *Indexer) flushVectors() error {
	if idx.vectors == nil {
		return nil
	}
	return idx.vectors.Flush()
}

// Search delegates to the searcher
func (idx *Indexer) Search(ctx context.Context, req searcher.Request) (*searcher.Response, error) {
	return idx.searcher.Search(ctx, req)
}

// Status reports what the index currently holds
func (idx *Indexer) Status(ctx context.Context) (*types.Status, error) {
	stats, err := idx.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	status := &types.Status{
		IndexedFiles:      int(stats.Files),
		IndexedSymbols:    int(stats.Symbols),
		IndexedReferences: int(stats.References),
		LastIndexed:       stats.LastIndexed,
	}
	if idx.embedder != nil {
		status.EmbeddingProvider = idx.embedder.Provider()
		status.EmbeddingModel = idx.embedder.Model()
		status.EmbeddingDimensions = idx.embedder.Dimension()
	}
	if idx.vectors != nil {
		status.IndexedVectors = idx.vectors.Len()
	}
	if info, err := os.Stat(idx.cfg.DBPath()); err == nil {
		status.StorageBytes = info.Size()
	}
	return status, nil
}

// Tree returns the containment forest of the whole index
func (idx *Indexer) Tree(ctx context.Context) (types.Tree, error) {
	return idx.store.GetTree(ctx)
}

// GetFile delegates to storage
func (idx *Indexer) GetFile(ctx context.Context, path string) (types.FileInfo, error) {
	return idx.store.GetFile(ctx, path)
}

// GetSymbol delegates to storage
func (idx *Indexer) GetSymbol(ctx context.Context, id types.SymbolID) (types.Symbol, error) {
	return idx.store.GetSymbol(ctx, id)
}

// FindSymbolsByName delegates to storage
func (idx *Indexer) FindSymbolsByName(ctx context.Context, name string) ([]types.Symbol, error) {
	return idx.store.FindSymbolsByName(ctx, name)
}

// GetCallers delegates to storage
func (idx *Indexer) GetCallers(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	return idx.store.GetCallers(ctx, id)
}

// GetCallees delegates to storage
func (idx *Indexer) GetCallees(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	return idx.store.GetCallees(ctx, id)
}

// GetReferencesTo delegates to storage
func (idx *Indexer) GetReferencesTo(ctx context.Context, id types.SymbolID) ([]types.RefSite, error) {
	return idx.store.GetReferencesTo(ctx, id)
}

// GetReferencesFrom delegates to storage
func (idx *Indexer) GetReferencesFrom(ctx context.Context, id types.SymbolID) ([]types.RefSite, error) {
	return idx.store.GetReferencesFrom(ctx, id)
}

// GetReferenceCount delegates to storage
func (idx *Indexer) GetReferenceCount(ctx context.Context, id types.SymbolID) (int64, error) {
	return idx.store.GetReferenceCount(ctx, id)
}

// SearchSymbols runs the keyword leg alone, skipping the hybrid merge
func (idx *Indexer) SearchSymbols(ctx context.Context, query string, limit int) ([]storage.SymbolMatch, error) {
	return idx.store.SearchSymbols(ctx, query, limit)
}

// SearchFiles delegates to storage
func (idx *Indexer) SearchFiles(ctx context.Context, pattern string, limit int) ([]types.FileInfo, error) {
	return idx.store.SearchFiles(ctx, pattern, limit)
}

// SymbolUsage ranks every referenced symbol in the index by how often
// it is referenced.
func (idx *Indexer) SymbolUsage(ctx context.Context) ([]types.SymbolUsage, error) {
	return graph.AllUsageStats(ctx, idx.store)
}

// StartWatching subscribes to filesystem changes under the project
// root and returns a stream of debounced change batches, each a sorted
// list of project-relative source paths. The stream closes when ctx is
// cancelled or the watcher stops. The caller decides when and whether
// to reindex each batch.
func (idx *Indexer) StartWatching(ctx context.Context) (<-chan []string, error) {
	w, err := watcher.New(idx.cfg.Watcher)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.AddRoot(idx.cfg.Root); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", idx.cfg.Root, err)
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	out := make(chan []string)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Batches():
				if !ok {
					return
				}
				paths := idx.relevantPaths(batch)
				if len(paths) == 0 {
					continue
				}
				select {
				case out <- paths:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Watch keeps the index current: it reindexes each batch of changes
// reported by StartWatching. Blocks until ctx is cancelled or the
// watcher fails.
func (idx *Indexer) Watch(ctx context.Context) error {
	batches, err := idx.StartWatching(ctx)
	if err != nil {
		return err
	}
	for paths := range batches {
		idx.log.Info("file changes detected", "files", len(paths))
		progress, err := idx.ReindexPaths(ctx, paths)
		if err != nil {
			return err
		}
		for _, ie := range progress.Errors {
			idx.log.Warn("reindex error", "path", ie.Path, "stage", ie.Stage, "error", ie.Message)
		}
	}
	return ctx.Err()
}

// relevantPaths converts watcher events to project-relative source
// paths, dropping anything outside the root or not worth indexing.
func (idx *Indexer) relevantPaths(batch []watcher.FileEvent) []string {
	seen := make(map[string]bool, len(batch))
	var paths []string
	for _, event := range batch {
		rel, err := filepath.Rel(idx.cfg.Root, event.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !analyzer.IsSourceFile(rel) || seen[rel] {
			continue
		}
		seen[rel] = true
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	return paths
}

// bindSymbols fills the fields the analyzer leaves open: deterministic
// ids, file path, and parent links resolved by qualified name.
func bindSymbols(relPath string, symbols []types.Symbol) {
	byQualified := make(map[string]types.SymbolID, len(symbols))
	for i := range symbols {
		sym := &symbols[i]
		sym.ID = types.NewSymbolID(relPath, sym.Qualified, sym.Kind)
		sym.FilePath = relPath
		byQualified[sym.Qualified] = sym.ID
	}
	for i := range symbols {
		sym := &symbols[i]
		if sym.Parent != "" {
			sym.ParentID = byQualified[sym.Parent]
		}
	}
}

// bindReferences attributes each reference to the innermost symbol whose
// span contains it, and pins references the analyzer left unresolved to
// same-file targets by qualified name. Cross-file targets stay unresolved
// and are matched by name at query time.
func bindReferences(symbols []types.Symbol, refs []types.Reference) {
	byQualified := make(map[string]types.SymbolID, len(symbols))
	for i := range symbols {
		byQualified[symbols[i].Qualified] = symbols[i].ID
	}
	for i := range refs {
		ref := &refs[i]
		if origin := originOf(symbols, ref.Span); origin != nil {
			ref.OriginID = origin.ID
		}
		if !ref.IsResolved() {
			if target, ok := byQualified[ref.TargetName]; ok {
				ref.TargetID = target
			}
		}
	}
}

func originOf(symbols []types.Symbol, span types.Span) *types.Symbol {
	var best *types.Symbol
	for i := range symbols {
		sym := &symbols[i]
		if !sym.Span.Contains(span) {
			continue
		}
		if best == nil || best.Span.Contains(sym.Span) {
			best = sym
		}
	}
	return best
}

func stageError(stage types.IndexStage, err error) error {
	return &stagedError{stage: stage, err: err}
}

type stagedError struct {
	stage types.IndexStage
	err   error
}

func (e *stagedError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stagedError) Unwrap() error {
	return e.err
}

// isEmbedFailure reports whether a file made it into storage and only
// the embedding stage failed. Such files are indexed and text-searchable.
func isEmbedFailure(err error) bool {
	staged, ok := err.(*stagedError)
	return ok && staged.stage == types.StageEmbed
}

func toIndexError(path string, err error) types.IndexError {
	ie := types.IndexError{Path: path, Stage: types.StageUnknown, Message: err.Error()}
	if staged, ok := err.(*stagedError); ok {
		ie.Stage = staged.stage
		ie.Message = staged.err.Error()
	}
	return ie
}

func sortErrors(errs []types.IndexError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
}
