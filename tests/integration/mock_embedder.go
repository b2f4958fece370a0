package integration

import (
	"context"
	"sync/atomic"

	"github.com/codeatlas/codeatlas/internal/embedder"
)

// MockEmbedder generates deterministic vectors and counts how many texts
// it was asked to embed, so tests can assert that unchanged files never
// reach the embedding stage.
type MockEmbedder struct {
	local *embedder.LocalProvider
	calls atomic.Int64
}

// NewMockEmbedder creates a counting mock around the local provider.
func NewMockEmbedder() *MockEmbedder {
	local, _ := embedder.NewLocalProvider(nil)
	return &MockEmbedder{local: local}
}

// EmbedCalls reports how many texts have been embedded so far.
func (m *MockEmbedder) EmbedCalls() int64 {
	return m.calls.Load()
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) (*embedder.Embedding, error) {
	m.calls.Add(1)
	return m.local.Embed(ctx, text)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error) {
	m.calls.Add(int64(len(texts)))
	return m.local.EmbedBatch(ctx, texts)
}

func (m *MockEmbedder) Dimension() int {
	return m.local.Dimension()
}

func (m *MockEmbedder) Provider() string {
	return "mock"
}

func (m *MockEmbedder) Model() string {
	return "mock-v1"
}

func (m *MockEmbedder) Close() error {
	return m.local.Close()
}
