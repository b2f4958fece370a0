// Package mcp implements the Model Context Protocol (MCP) server for
// CodeAtlas.
//
// The server speaks JSON-RPC 2.0 over stdio and exposes one project's
// index to AI coding assistants:
//
//   - index_project: bring the index up to date with the source tree
//   - reindex_paths: refresh specific files
//   - search_code: hybrid, vector, or keyword symbol search
//   - get_callers / get_callees: bounded transitive call graph walks
//   - call_path: shortest call chain between two symbols
//   - detect_cycles: call cycles in the indexed graph
//   - symbol_metrics: fan-in/out, reach, references, cycle membership
//   - get_status: index statistics
//
// Tools that take a symbol accept either a symbol id or a name. Names
// that resolve to more than one symbol are rejected with the candidate
// list so the client can retry with a qualified name or id.
//
// Logs go to stderr; stdout carries only protocol frames.
package mcp
