// Package storage persists the code index in SQLite.
//
// The schema is three tables: files, symbols, and refs, with an FTS5
// virtual table kept in sync by triggers for symbol search. All writes go
// through UpsertFile, which replaces a file's derived rows transactionally,
// making indexing idempotent per file. The call graph is not materialized:
// callers and callees are resolved at query time by joining references to
// symbols through the stored target id or, for unresolved references, by
// name.
//
// Two SQLite drivers are supported through build tags; see build_purego.go
// and build_cgo.go.
package storage
