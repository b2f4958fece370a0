package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	JinaDimension   = 1024
	OpenAIDimension = 1536

	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	openaiEndpoint = "https://api.openai.com/v1/embeddings"

	// MaxBatchSize is the largest batch accepted per API call
	MaxBatchSize = 100

	// Environment variables
	EnvProvider     = "CODEATLAS_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// RemoteProvider embeds through an OpenAI-compatible HTTP embeddings
// endpoint. Jina and OpenAI share the request and response shape, so one
// implementation serves both.
type RemoteProvider struct {
	name      string
	model     string
	endpoint  string
	apiKey    string
	dimension int

	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
}

// NewJinaProvider creates an embedder backed by the Jina AI API
func NewJinaProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderJina, DefaultJinaModel, jinaEndpoint,
		apiKey, EnvJinaAPIKey, JinaDimension, cache)
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API
func NewOpenAIProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderOpenAI, DefaultOpenAIModel, openaiEndpoint,
		apiKey, EnvOpenAIAPIKey, OpenAIDimension, cache)
}

func newRemoteProvider(name, model, endpoint, apiKey, envKey string, dimension int, cache *Cache) (*RemoteProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoAPIKey, envKey)
	}

	return &RemoteProvider{
		name:      name,
		model:     model,
		endpoint:  endpoint,
		apiKey:    apiKey,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
		retry: DefaultRetryConfig(),
	}, nil
}

func (p *RemoteProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	embeddings, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return embeddings[0], nil
}

// EmbedBatch serves what it can from the cache and sends only the misses
// to the API, then reassembles results in input order.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if err := validateBatch(texts, MaxBatchSize); err != nil {
		return nil, err
	}

	results := make([]*Embedding, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		hash := HashText(text)
		if p.cache != nil {
			if emb, ok := p.cache.Get(hash); ok {
				results[i] = emb
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		fetched, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
			return p.callAPI(ctx, missTexts)
		})
		if err != nil {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, p.retry.MaxRetries, err)
		}
		if len(fetched) != len(missTexts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(fetched), len(missTexts))
		}
		for j, emb := range fetched {
			emb.Hash = HashText(missTexts[j])
			if p.cache != nil {
				p.cache.Set(emb.Hash, emb)
			}
			results[missIdx[j]] = emb
		}
	}

	return results, nil
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(msg))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}
	return embeddings, nil
}

func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.name
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
