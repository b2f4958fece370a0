package embedder

import (
	"context"
	"fmt"
	"math"

	"lukechampine.com/blake3"
)

// LocalDimension is the vector width of the offline embedder
const LocalDimension = 256

// LocalProvider derives vectors from content hashes. Identical text
// always maps to the same unit vector and unrelated text lands elsewhere,
// which keeps the full index/search pipeline working offline. It has no
// semantic understanding; configure a remote provider for real relevance.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the offline embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: "hash-v1",
		cache: cache,
	}, nil
}

func (l *LocalProvider) Embed(_ context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := HashText(text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Stretch the hash to the full width with blake3's XOF, then
	// normalize so cosine similarity behaves.
	h := blake3.New(LocalDimension, nil)
	_, _ = h.Write([]byte(text))
	material := h.Sum(nil)

	vector := make([]float32, LocalDimension)
	var sum float64
	for i, b := range material[:LocalDimension] {
		v := float32(b)/127.5 - 1.0
		vector[i] = v
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vector {
			vector[i] /= norm
		}
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if err := validateBatch(texts, 0); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(texts))
	for i, text := range texts {
		emb, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
