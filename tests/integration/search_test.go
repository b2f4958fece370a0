package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/indexer"
	"github.com/codeatlas/codeatlas/internal/searcher"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/vecindex"
)

const librarySrc = `package library

// ParseManifest reads and validates a package manifest file.
func ParseManifest(path string) error {
	return nil
}

// WriteManifest serializes a manifest back to disk.
func WriteManifest(path string) error {
	return nil
}

// ResolveDependencies walks the dependency graph of a manifest.
func ResolveDependencies() {
	ParseManifest("")
}
`

// SearchTestSuite exercises search end to end: index real files, then
// query through every mode.
type SearchTestSuite struct {
	suite.Suite
	ctx     context.Context
	indexer *indexer.Indexer
	storage storage.Storage
}

func (s *SearchTestSuite) SetupTest() {
	s.ctx = context.Background()

	root := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(root, "library.go"), []byte(librarySrc), 0o644))

	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.storage = store

	emb := NewMockEmbedder()
	vectors, err := vecindex.Open(filepath.Join(s.T().TempDir(), "vectors.bin"), emb.Dimension())
	s.Require().NoError(err)

	s.indexer = indexer.New(config.Default(root), store, emb, vectors)
	_, err = s.indexer.Index(s.ctx)
	s.Require().NoError(err)
}

func (s *SearchTestSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *SearchTestSuite) TestKeywordSearch() {
	resp, err := s.indexer.Search(s.ctx, searcher.Request{
		Query: "manifest",
		Mode:  searcher.ModeKeyword,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	names := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		names = append(names, r.Symbol.Name)
	}
	s.Contains(names, "ParseManifest")
	s.Contains(names, "WriteManifest")
}

func (s *SearchTestSuite) TestVectorSearchFindsExactSymbolText() {
	resp, err := s.indexer.Search(s.ctx, searcher.Request{
		Query: "ParseManifest",
		Mode:  searcher.ModeVector,
		Limit: 3,
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.Results)
	s.Equal(searcher.ModeVector, resp.Mode)
}

func (s *SearchTestSuite) TestHybridSearchRanksAgreedResultFirst() {
	resp, err := s.indexer.Search(s.ctx, searcher.Request{
		Query: "manifest",
		Mode:  searcher.ModeHybrid,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)
	s.Positive(resp.TextHits)
	s.Equal(1, resp.Results[0].Rank)
}

func (s *SearchTestSuite) TestSearchCacheInvalidatedByReindex() {
	req := searcher.Request{Query: "manifest", Mode: searcher.ModeKeyword, UseCache: true}

	first, err := s.indexer.Search(s.ctx, req)
	s.Require().NoError(err)
	s.False(first.CacheHit)

	second, err := s.indexer.Search(s.ctx, req)
	s.Require().NoError(err)
	s.True(second.CacheHit)

	_, err = s.indexer.ReindexPaths(s.ctx, []string{"library.go"})
	s.Require().NoError(err)

	third, err := s.indexer.Search(s.ctx, req)
	s.Require().NoError(err)
	s.False(third.CacheHit, "reindex must purge the search cache")
}

func TestSearchSuite(t *testing.T) {
	suite.Run(t, new(SearchTestSuite))
}
