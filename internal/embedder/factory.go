package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	CacheSize int
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	var emb Embedder
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, cache)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal, "":
		emb, err = NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Model != "" {
		if remote, ok := emb.(*RemoteProvider); ok {
			remote.model = cfg.Model
		}
	}
	return emb, nil
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. CODEATLAS_EMBEDDING_PROVIDER (jina, openai, local)
//  2. Whichever of JINA_API_KEY, OPENAI_API_KEY is set
//  3. The local provider
func NewFromEnv() (Embedder, error) {
	cache := NewCache(0)

	if provider := os.Getenv(EnvProvider); provider != "" {
		switch strings.ToLower(provider) {
		case ProviderJina:
			return NewJinaProvider("", cache)
		case ProviderOpenAI:
			return NewOpenAIProvider("", cache)
		case ProviderLocal:
			return NewLocalProvider(cache)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
		}
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return NewJinaProvider("", cache)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return NewOpenAIProvider("", cache)
	}
	return NewLocalProvider(cache)
}

// DetectProvider returns the provider NewFromEnv would pick
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
