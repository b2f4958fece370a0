// Package indexer orchestrates the indexing pipeline. It discovers
// source files under a project root, runs each through the language
// analyzers, persists symbols and references to storage, and keeps the
// vector index in step. Unchanged files are skipped by content hash, so
// repeated runs only pay for what actually changed.
package indexer
