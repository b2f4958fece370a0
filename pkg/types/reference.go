package types

// RefKind classifies a directed reference between code locations.
type RefKind string

const (
	RefCall    RefKind = "call"
	RefImport  RefKind = "import"
	RefInherit RefKind = "inherit"
	RefField   RefKind = "field"
	RefType    RefKind = "type"
)

// Reference is a directed relationship from a source location to a named
// target. Call-kind references form the call graph, which may contain cycles
// (mutual and recursive calls are expected). Resolution is by name: TargetID
// is filled in when the analyzer or the indexer could pin the target to a
// concrete symbol, and left empty otherwise.
type Reference struct {
	// OriginID is the id of the innermost symbol enclosing the reference
	// site. Empty for references occurring outside any symbol (for example
	// top-level imports).
	OriginID SymbolID

	TargetName string
	TargetID   SymbolID // optional, "" when unresolved

	Kind   RefKind
	FileID int64
	Span   Span
}

// IsResolved reports whether the reference carries a concrete target id.
func (r *Reference) IsResolved() bool {
	return r.TargetID != ""
}
