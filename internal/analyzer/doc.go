// Package analyzer provides per-language symbol and reference extraction.
//
// Analyzers are pluggable behind a small contract: extract symbols, extract
// references, no resolution. The Registry maps language tags onto installed
// analyzers and always answers -- an unknown language gets the generic
// heuristic analyzer, so indexing never hard-fails because a plugin is
// missing.
//
// Built-in analyzers:
//
//   - GoAnalyzer: full AST extraction via go/parser (functions, methods,
//     types, fields, consts, call and inheritance references).
//   - GenericAnalyzer: regex heuristics over definition keywords; the
//     fallback for every other language.
//
// All spans returned by an analyzer are line/column positions into the
// source text it was handed. Binding symbols to files, deriving ids and
// matching references to their enclosing symbols is the indexer's job.
package analyzer
