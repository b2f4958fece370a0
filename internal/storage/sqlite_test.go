package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/types"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSymbol(path, name string, kind types.SymbolKind, startLine, endLine int) types.Symbol {
	return types.Symbol{
		ID:        types.NewSymbolID(path, name, kind),
		Name:      name,
		Qualified: name,
		Kind:      kind,
		Signature: "func " + name + "()",
		Span: types.Span{
			Start: types.Position{Line: startLine, Column: 1},
			End:   types.Position{Line: endLine, Column: 1},
		},
	}
}

func testFile(path string) types.FileInfo {
	return types.FileInfo{
		Path:     path,
		Language: "go",
		Hash:     "hash-" + path,
		ModTime:  time.Now().Truncate(time.Second),
	}
}

func TestUpsertFileAndGet(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	file := testFile("pkg/a.go")
	foo := testSymbol("pkg/a.go", "foo", types.KindFunction, 1, 5)

	fileID, err := store.UpsertFile(ctx, file, []types.Symbol{foo}, nil)
	require.NoError(t, err)
	require.NotZero(t, fileID)

	got, err := store.GetFile(ctx, "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, fileID, got.ID)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, "hash-pkg/a.go", got.Hash)

	sym, err := store.GetSymbol(ctx, foo.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", sym.Name)
	assert.Equal(t, types.KindFunction, sym.Kind)
	assert.Equal(t, "pkg/a.go", sym.FilePath)
	assert.Equal(t, fileID, sym.FileID)
}

func TestGetFileNotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.GetFile(context.Background(), "nope.go")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetSymbol(context.Background(), types.SymbolID("deadbeef"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFileReplacesPriorRows(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	file := testFile("pkg/a.go")
	foo := testSymbol("pkg/a.go", "foo", types.KindFunction, 1, 5)
	bar := testSymbol("pkg/a.go", "bar", types.KindFunction, 7, 9)

	firstID, err := store.UpsertFile(ctx, file, []types.Symbol{foo, bar}, nil)
	require.NoError(t, err)

	// Second version of the file drops bar.
	secondID, err := store.UpsertFile(ctx, file, []types.Symbol{foo}, nil)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID, "file id must be stable across upserts")

	syms, err := store.ListSymbolsByFile(ctx, firstID)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "foo", syms[0].Name)

	_, err = store.GetSymbol(ctx, bar.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFileIdempotent(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	file := testFile("pkg/a.go")
	foo := testSymbol("pkg/a.go", "foo", types.KindFunction, 1, 5)
	refs := []types.Reference{{
		OriginID:   foo.ID,
		TargetName: "bar",
		Kind:       types.RefCall,
		Span:       types.Span{Start: types.Position{Line: 2, Column: 3}, End: types.Position{Line: 2, Column: 6}},
	}}

	for i := 0; i < 3; i++ {
		_, err := store.UpsertFile(ctx, file, []types.Symbol{foo}, refs)
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Files)
	assert.Equal(t, int64(1), stats.Symbols)
	assert.Equal(t, int64(1), stats.References)
	assert.False(t, stats.LastIndexed.IsZero())
}

func TestDeleteFile(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	foo := testSymbol("pkg/a.go", "foo", types.KindFunction, 1, 5)
	_, err := store.UpsertFile(ctx, testFile("pkg/a.go"), []types.Symbol{foo}, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteFile(ctx, "pkg/a.go"))

	_, err = store.GetFile(ctx, "pkg/a.go")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSymbol(ctx, foo.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, store.DeleteFile(ctx, "pkg/a.go"))
}

func TestFindSymbolsByName(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	method := testSymbol("pkg/b.go", "Push", types.KindMethod, 3, 6)
	method.Qualified = "Stack.Push"
	method.Parent = "Stack"
	_, err := store.UpsertFile(ctx, testFile("pkg/b.go"), []types.Symbol{method}, nil)
	require.NoError(t, err)

	byName, err := store.FindSymbolsByName(ctx, "Push")
	require.NoError(t, err)
	require.Len(t, byName, 1)

	byQualified, err := store.FindSymbolsByName(ctx, "Stack.Push")
	require.NoError(t, err)
	require.Len(t, byQualified, 1)
	assert.Equal(t, byName[0].ID, byQualified[0].ID)
}

func TestSearchSymbolsFTS(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	parse := testSymbol("pkg/p.go", "ParseConfig", types.KindFunction, 1, 10)
	parse.Doc = "ParseConfig reads the yaml configuration file."
	write := testSymbol("pkg/p.go", "WriteOutput", types.KindFunction, 12, 20)
	_, err := store.UpsertFile(ctx, testFile("pkg/p.go"), []types.Symbol{parse, write}, nil)
	require.NoError(t, err)

	matches, err := store.SearchSymbols(ctx, "configuration", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ParseConfig", matches[0].Symbol.Name)
	assert.Greater(t, matches[0].Score, 0.0)

	// Prefix match on the last term.
	matches, err = store.SearchSymbols(ctx, "ParseConf", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Deleted rows drop out of the FTS index.
	require.NoError(t, store.DeleteFile(ctx, "pkg/p.go"))
	matches, err = store.SearchSymbols(ctx, "configuration", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCallersAndCallees(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	foo := testSymbol("a.go", "foo", types.KindFunction, 1, 5)
	bar := testSymbol("b.go", "bar", types.KindFunction, 1, 5)

	// foo calls bar by name; the reference is unresolved at write time.
	fooRefs := []types.Reference{{
		OriginID:   foo.ID,
		TargetName: "bar",
		Kind:       types.RefCall,
		Span:       types.Span{Start: types.Position{Line: 2, Column: 2}, End: types.Position{Line: 2, Column: 5}},
	}}

	_, err := store.UpsertFile(ctx, testFile("a.go"), []types.Symbol{foo}, fooRefs)
	require.NoError(t, err)
	_, err = store.UpsertFile(ctx, testFile("b.go"), []types.Symbol{bar}, nil)
	require.NoError(t, err)

	callers, err := store.GetCallers(ctx, bar.ID)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, foo.ID, callers[0].ID)

	callees, err := store.GetCallees(ctx, foo.ID)
	require.NoError(t, err)
	require.Len(t, callees, 1)
	assert.Equal(t, bar.ID, callees[0].ID)

	// bar calls nothing and nothing calls foo.
	callees, err = store.GetCallees(ctx, bar.ID)
	require.NoError(t, err)
	assert.Empty(t, callees)
	callers, err = store.GetCallers(ctx, foo.ID)
	require.NoError(t, err)
	assert.Empty(t, callers)
}

func TestGetReferencesToAndCount(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	foo := testSymbol("a.go", "foo", types.KindFunction, 1, 5)
	bar := testSymbol("b.go", "bar", types.KindFunction, 1, 5)
	refs := []types.Reference{
		{OriginID: foo.ID, TargetName: "bar", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 2, Column: 2}, End: types.Position{Line: 2, Column: 5}}},
		{OriginID: foo.ID, TargetName: "bar", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 4, Column: 2}, End: types.Position{Line: 4, Column: 5}}},
	}

	_, err := store.UpsertFile(ctx, testFile("a.go"), []types.Symbol{foo}, refs)
	require.NoError(t, err)
	_, err = store.UpsertFile(ctx, testFile("b.go"), []types.Symbol{bar}, nil)
	require.NoError(t, err)

	sites, err := store.GetReferencesTo(ctx, bar.ID)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "a.go", sites[0].Path)
	assert.Equal(t, 2, sites[0].Line)
	assert.Equal(t, "foo", sites[0].Origin)
	assert.Equal(t, 4, sites[1].Line)

	count, err := store.GetReferenceCount(ctx, bar.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestGetReferencesFrom(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	foo := testSymbol("a.go", "foo", types.KindFunction, 1, 5)
	bar := testSymbol("b.go", "bar", types.KindFunction, 1, 5)
	refs := []types.Reference{
		{OriginID: foo.ID, TargetName: "bar", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 2, Column: 2}, End: types.Position{Line: 2, Column: 5}}},
		{OriginID: foo.ID, TargetName: "missing", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 3, Column: 2}, End: types.Position{Line: 3, Column: 9}}},
	}

	_, err := store.UpsertFile(ctx, testFile("a.go"), []types.Symbol{foo}, refs)
	require.NoError(t, err)
	_, err = store.UpsertFile(ctx, testFile("b.go"), []types.Symbol{bar}, nil)
	require.NoError(t, err)

	sites, err := store.GetReferencesFrom(ctx, foo.ID)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, 2, sites[0].Line)
	assert.Equal(t, "missing", sites[1].Origin)

	none, err := store.GetReferencesFrom(ctx, bar.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.GetReferencesFrom(ctx, types.SymbolID("0000000000000000ffffffffffffffff"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTreeNesting(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	parent := testSymbol("s.go", "Stack", types.KindStruct, 1, 10)
	child := testSymbol("s.go", "Stack.Push", types.KindMethod, 3, 6)
	child.Name = "Push"
	child.Parent = "Stack"
	child.ParentID = parent.ID

	_, err := store.UpsertFile(ctx, testFile("s.go"), []types.Symbol{parent, child}, nil)
	require.NoError(t, err)

	tree, err := store.GetTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree.Files, 1)
	require.Len(t, tree.Files[0].Symbols, 1)

	root := tree.Files[0].Symbols[0]
	assert.Equal(t, "Stack", root.Name)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Push", root.Children[0].Name)
}

func TestListCallEdgesAndCallables(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	foo := testSymbol("a.go", "foo", types.KindFunction, 1, 5)
	bar := testSymbol("b.go", "bar", types.KindFunction, 1, 5)
	kind := testSymbol("b.go", "Kind", types.KindType, 7, 7)

	fooRefs := []types.Reference{
		{OriginID: foo.ID, TargetName: "bar", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 2, Column: 2}, End: types.Position{Line: 2, Column: 5}}},
		// Duplicate call sites collapse to one edge.
		{OriginID: foo.ID, TargetName: "bar", Kind: types.RefCall,
			Span: types.Span{Start: types.Position{Line: 3, Column: 2}, End: types.Position{Line: 3, Column: 5}}},
	}
	_, err := store.UpsertFile(ctx, testFile("a.go"), []types.Symbol{foo}, fooRefs)
	require.NoError(t, err)
	_, err = store.UpsertFile(ctx, testFile("b.go"), []types.Symbol{bar, kind}, nil)
	require.NoError(t, err)

	edges, err := store.ListCallEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, CallEdge{From: foo.ID, To: bar.ID}, edges[0])

	callables, err := store.ListCallables(ctx)
	require.NoError(t, err)
	require.Len(t, callables, 2, "type aliases are not callables")
	assert.Equal(t, "foo", callables[0].Name)
	assert.Equal(t, "bar", callables[1].Name)
}

func TestPrepareFTSQuery(t *testing.T) {
	assert.Equal(t, `"parse"*`, prepareFTSQuery("parse"))
	assert.Equal(t, `"parse" "config"*`, prepareFTSQuery("parse config"))
	assert.Equal(t, `"a""b"*`, prepareFTSQuery(`a"b`))
	assert.Equal(t, "", prepareFTSQuery("   "))
}
