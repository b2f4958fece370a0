// Package graph implements call graph traversals as pure functions over
// the storage layer: transitive caller/callee walks, shortest call paths,
// cycle detection, entry and leaf discovery, and per-symbol metrics.
//
// Bounded walks (TransitiveCallers, FindCallPath) query neighbors per node
// so they touch only the reachable region; whole-graph questions
// (DetectCycles, EntryPoints) bulk-load the edge list once instead.
package graph
