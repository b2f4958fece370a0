// Package searcher answers code search queries by fusing two rankings:
// BM25 full-text matches from the symbol index and cosine-similarity
// neighbors from the vector index, merged with Reciprocal Rank Fusion.
// Responses are cached with a TTL; the cache is purged on every index
// write.
package searcher
