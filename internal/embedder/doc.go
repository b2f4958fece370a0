// Package embedder generates vector embeddings for symbol text.
//
// Three providers are available: jina and openai call their hosted APIs
// through a shared OpenAI-compatible HTTP client with exponential backoff,
// and local derives deterministic vectors from content hashes so the
// pipeline works without network access or keys. All providers share an
// LRU cache keyed by content hash.
//
// Provider selection follows CODEATLAS_EMBEDDING_PROVIDER, then available
// API keys, then falls back to local.
package embedder
