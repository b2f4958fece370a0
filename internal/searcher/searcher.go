package searcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"github.com/codeatlas/codeatlas/internal/embedder"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/vecindex"
	"github.com/codeatlas/codeatlas/pkg/types"
)

// Mode defines how search is performed
type Mode string

const (
	ModeHybrid  Mode = "hybrid"  // vector + full-text with RRF
	ModeVector  Mode = "vector"  // vector similarity only
	ModeKeyword Mode = "keyword" // full-text only
)

// Request contains parameters for a search operation
type Request struct {
	Query    string
	Limit    int
	Mode     Mode
	UseCache bool
}

// Result is one ranked search hit
type Result struct {
	Symbol types.Symbol
	Score  float64
	Rank   int
}

// Response contains search results and metadata
type Response struct {
	Results    []Result
	Mode       Mode
	Duration   time.Duration
	CacheHit   bool
	VectorHits int
	TextHits   int
}

// Options tunes the searcher
type Options struct {
	DefaultLimit int
	CacheSize    int
	CacheTTL     time.Duration
	RRFConstant  float64
}

// DefaultOptions returns the searcher defaults
func DefaultOptions() Options {
	return Options{
		DefaultLimit: 20,
		CacheSize:    256,
		CacheTTL:     5 * time.Minute,
		RRFConstant:  60,
	}
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher merges full-text symbol search with vector similarity
type Searcher struct {
	store    storage.Storage
	vectors  *vecindex.Index
	embedder embedder.Embedder
	opts     Options
	cache    *lru.Cache[[32]byte, *cacheEntry]
}

// New creates a Searcher. vectors and emb may be nil, which disables the
// vector leg; hybrid requests then degrade to full-text results.
func New(store storage.Storage, vectors *vecindex.Index, emb embedder.Embedder, opts Options) *Searcher {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = 60
	}

	cache, err := lru.New[[32]byte, *cacheEntry](opts.CacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create search cache: %v", err))
	}

	return &Searcher{
		store:    store,
		vectors:  vectors,
		embedder: emb,
		opts:     opts,
		cache:    cache,
	}
}

// Search runs one query
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if req.Limit <= 0 {
		req.Limit = s.opts.DefaultLimit
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}

	key := s.cacheKey(req)
	if req.UseCache {
		if cached, ok := s.cache.Get(key); ok {
			if time.Now().Before(cached.expiresAt) {
				resp := copyResponse(cached.response)
				resp.CacheHit = true
				resp.Duration = time.Since(start)
				return resp, nil
			}
			s.cache.Remove(key)
		}
	}

	var resp *Response
	var err error
	switch req.Mode {
	case ModeHybrid:
		resp, err = s.hybridSearch(ctx, req)
	case ModeVector:
		resp, err = s.vectorSearch(ctx, req)
	case ModeKeyword:
		resp, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Mode = req.Mode
	resp.Duration = time.Since(start)

	if req.UseCache && len(resp.Results) > 0 {
		s.cache.Add(key, &cacheEntry{
			response:  copyResponse(resp),
			expiresAt: time.Now().Add(s.opts.CacheTTL),
		})
	}
	return resp, nil
}

// InvalidateCache drops all cached responses. The indexer calls this
// after any write, since cached rankings may reference removed symbols.
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	// Run both legs concurrently; they touch different stores.
	type legResult struct {
		vector []vecindex.Hit
		text   []storage.SymbolMatch
		err    error
	}
	vectorCh := make(chan legResult, 1)
	textCh := make(chan legResult, 1)

	go func() {
		hits, err := s.vectorHits(ctx, req.Query, req.Limit*2)
		vectorCh <- legResult{vector: hits, err: err}
	}()
	go func() {
		matches, err := s.store.SearchSymbols(ctx, req.Query, req.Limit*2)
		textCh <- legResult{text: matches, err: err}
	}()

	vectorLeg := <-vectorCh
	textLeg := <-textCh

	// A failed vector leg degrades to text-only results instead of
	// failing the query; a failed text leg is a real error.
	if textLeg.err != nil {
		return nil, fmt.Errorf("text search: %w", textLeg.err)
	}
	if vectorLeg.err != nil {
		vectorLeg.vector = nil
	}

	ranked := applyRRF(vectorLeg.vector, textLeg.text, s.opts.RRFConstant)
	results, err := s.resolve(ctx, ranked, textLeg.text, req.Limit)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:    results,
		VectorHits: len(vectorLeg.vector),
		TextHits:   len(textLeg.text),
	}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.vectorHits(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		sym, err := s.store.GetSymbol(ctx, hit.ID)
		if err == storage.ErrNotFound {
			continue // vector for a symbol deleted since the last flush
		}
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Symbol: sym, Score: hit.Score, Rank: len(results) + 1})
	}
	return &Response{Results: results, VectorHits: len(hits)}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req Request) (*Response, error) {
	matches, err := s.store.SearchSymbols(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{Symbol: m.Symbol, Score: m.Score, Rank: i + 1}
	}
	return &Response{Results: results, TextHits: len(matches)}, nil
}

func (s *Searcher) vectorHits(ctx context.Context, query string, k int) ([]vecindex.Hit, error) {
	if s.vectors == nil || s.embedder == nil {
		return nil, nil
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.vectors.KNN(emb.Vector, k)
}

type rankedID struct {
	id    types.SymbolID
	score float64
}

// applyRRF merges the two result lists with Reciprocal Rank Fusion:
// RRF(d) = sum over lists of 1/(k + rank(d)).
func applyRRF(vectorHits []vecindex.Hit, textMatches []storage.SymbolMatch, k float64) []rankedID {
	scores := make(map[types.SymbolID]float64)

	for rank, hit := range vectorHits {
		scores[hit.ID] += 1.0 / (k + float64(rank+1))
	}
	for rank, m := range textMatches {
		scores[m.Symbol.ID] += 1.0 / (k + float64(rank+1))
	}

	ranked := make([]rankedID, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, rankedID{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

// resolve turns ranked ids into full results, reusing symbols the text
// leg already fetched and loading the rest from storage.
func (s *Searcher) resolve(ctx context.Context, ranked []rankedID, textMatches []storage.SymbolMatch, limit int) ([]Result, error) {
	known := make(map[types.SymbolID]types.Symbol, len(textMatches))
	for _, m := range textMatches {
		known[m.Symbol.ID] = m.Symbol
	}

	results := make([]Result, 0, limit)
	for _, r := range ranked {
		if len(results) == limit {
			break
		}
		sym, ok := known[r.id]
		if !ok {
			var err error
			sym, err = s.store.GetSymbol(ctx, r.id)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		results = append(results, Result{Symbol: sym, Score: r.score, Rank: len(results) + 1})
	}
	return results, nil
}

func (s *Searcher) cacheKey(req Request) [32]byte {
	return blake3.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", req.Mode, req.Query, req.Limit)))
}

func copyResponse(src *Response) *Response {
	dst := *src
	dst.Results = append([]Result(nil), src.Results...)
	return &dst
}
