// Package types provides the shared data model for the CodeAtlas index.
//
// The model has two distinct relations over symbols:
//
//   - The containment forest: parent/child nesting of symbols within a file
//     (methods under a type, fields under a struct). Acyclic by construction.
//   - The call graph: directed call-kind references between symbols. Cycles
//     are expected and must be handled by consumers.
//
// # Symbol identity
//
// SymbolID is content-deterministic, derived from (file path, qualified
// name, kind) with blake3:
//
//	id := types.NewSymbolID("internal/auth/login.go", "Server.Login", types.KindMethod)
//
// Re-parsing an unchanged file reproduces identical ids. This is what lets
// the per-file replace transaction in storage leave cross-file call edges
// intact without renumbering.
//
// # References
//
// A Reference points from an origin symbol at a named target. The target
// may remain unresolved by name (TargetID empty) when the defining symbol
// cannot be determined; whole-program resolution is out of scope.
package types
