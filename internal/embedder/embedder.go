package embedder

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// Common errors
var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNoAPIKey            = errors.New("no API key configured")
)

// Embedding is one vector with its provenance
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // content hash of the embedded text
}

// Embedder turns text into vectors. Implementations must be safe for
// concurrent use; the indexer calls them from its worker pool.
type Embedder interface {
	Embed(ctx context.Context, text string) (*Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error)

	// Dimension returns the vector width this provider produces
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache memoizes embeddings by content hash with LRU eviction, so
// re-indexing a file whose symbols moved but did not change never re-pays
// the provider round trip.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates an embedding cache holding up to maxLen entries
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 4096
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](4096)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached embedding, so caller mutations can't
// corrupt the cached vector
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vector := make([]float32, len(emb.Vector))
	copy(vector, emb.Vector)
	return &Embedding{
		Vector:    vector,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

func (c *Cache) Len() int {
	return c.cache.Len()
}

func (c *Cache) Purge() {
	c.cache.Purge()
}

// HashText computes the content hash used as the cache key
func HashText(text string) string {
	return types.ContentHash([]byte(text))
}

func validateBatch(texts []string, maxBatch int) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if maxBatch > 0 && len(texts) > maxBatch {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, maxBatch)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
	}
	return nil
}
