package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/pkg/types"
)

// fakeStore serves the graph queries from an in-memory edge list.
type fakeStore struct {
	symbols map[types.SymbolID]types.Symbol
	edges   []storage.CallEdge
}

// newFakeStore builds a store from a call adjacency keyed by symbol name.
// Every name that appears becomes a function symbol.
func newFakeStore(calls map[string][]string) *fakeStore {
	fs := &fakeStore{symbols: make(map[types.SymbolID]types.Symbol)}
	add := func(name string) types.SymbolID {
		id := types.NewSymbolID(name+".go", name, types.KindFunction)
		if _, ok := fs.symbols[id]; !ok {
			fs.symbols[id] = types.Symbol{
				ID: id, Name: name, Qualified: name,
				Kind: types.KindFunction, FilePath: name + ".go",
			}
		}
		return id
	}
	names := make([]string, 0, len(calls))
	for from := range calls {
		names = append(names, from)
	}
	sort.Strings(names)
	for _, from := range names {
		fromID := add(from)
		for _, to := range calls[from] {
			fs.edges = append(fs.edges, storage.CallEdge{From: fromID, To: add(to)})
		}
	}
	return fs
}

func (fs *fakeStore) id(name string) types.SymbolID {
	return types.NewSymbolID(name+".go", name, types.KindFunction)
}

func (fs *fakeStore) GetSymbol(_ context.Context, id types.SymbolID) (types.Symbol, error) {
	sym, ok := fs.symbols[id]
	if !ok {
		return types.Symbol{}, storage.ErrNotFound
	}
	return sym, nil
}

func (fs *fakeStore) neighbors(id types.SymbolID, incoming bool) []types.Symbol {
	var result []types.Symbol
	for _, e := range fs.edges {
		if incoming && e.To == id {
			result = append(result, fs.symbols[e.From])
		}
		if !incoming && e.From == id {
			result = append(result, fs.symbols[e.To])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (fs *fakeStore) GetCallers(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	if _, err := fs.GetSymbol(ctx, id); err != nil {
		return nil, err
	}
	return fs.neighbors(id, true), nil
}

func (fs *fakeStore) GetCallees(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	if _, err := fs.GetSymbol(ctx, id); err != nil {
		return nil, err
	}
	return fs.neighbors(id, false), nil
}

func (fs *fakeStore) GetReferencesTo(_ context.Context, id types.SymbolID) ([]types.RefSite, error) {
	var sites []types.RefSite
	for _, e := range fs.edges {
		if e.To == id {
			from := fs.symbols[e.From]
			sites = append(sites, types.RefSite{Path: from.FilePath, Line: 1, Origin: from.Qualified})
		}
	}
	return sites, nil
}

func (fs *fakeStore) GetReferenceCount(ctx context.Context, id types.SymbolID) (int64, error) {
	sites, err := fs.GetReferencesTo(ctx, id)
	return int64(len(sites)), err
}

func (fs *fakeStore) ListCallEdges(_ context.Context) ([]storage.CallEdge, error) {
	return fs.edges, nil
}

func (fs *fakeStore) ListCallables(_ context.Context) ([]types.Symbol, error) {
	var result []types.Symbol
	for _, sym := range fs.symbols {
		result = append(result, sym)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (fs *fakeStore) GetTree(ctx context.Context) (types.Tree, error) {
	callables, err := fs.ListCallables(ctx)
	if err != nil {
		return types.Tree{}, err
	}
	var tree types.Tree
	for i := range callables {
		sym := callables[i]
		tree.Files = append(tree.Files, types.FileNode{
			File:    types.FileInfo{Path: sym.FilePath},
			Symbols: []*types.Symbol{&sym},
		})
	}
	return tree, nil
}

func names(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Symbol.Name
	}
	return out
}

func symbolNames(syms []types.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func TestTransitiveCalleesChain(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"d"},
	})
	ctx := context.Background()

	nodes, err := TransitiveCallees(ctx, fs, fs.id("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, names(nodes))
	assert.Equal(t, 1, nodes[0].Depth)
	assert.Equal(t, 3, nodes[2].Depth)

	// Depth bound cuts the walk.
	nodes, err = TransitiveCallees(ctx, fs, fs.id("a"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(nodes))
}

func TestTransitiveCallersDiamond(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b", "c"}, "b": {"d"}, "c": {"d"},
	})
	ctx := context.Background()

	// d is reached through both branches but reported once.
	nodes, err := TransitiveCallees(ctx, fs, fs.id("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, names(nodes))

	nodes, err = TransitiveCallers(ctx, fs, fs.id("d"), 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names(nodes))
}

func TestTraverseUnknownSymbol(t *testing.T) {
	fs := newFakeStore(map[string][]string{"a": {"b"}})
	_, err := TransitiveCallees(context.Background(), fs, types.SymbolID("missing"), 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTraverseCycleTerminates(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"a"},
	})
	nodes, err := TransitiveCallees(context.Background(), fs, fs.id("a"), 0)
	require.NoError(t, err)
	// a itself is not revisited.
	assert.Equal(t, []string{"b", "c"}, names(nodes))
}

func TestFindCallPath(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"d"},
	})
	ctx := context.Background()

	path, err := FindCallPath(ctx, fs, fs.id("a"), fs.id("d"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, symbolNames(path))

	// Three edges separate a from d: a bound of 2 misses, 3 reaches.
	path, err = FindCallPath(ctx, fs, fs.id("a"), fs.id("d"), 2)
	require.NoError(t, err)
	assert.Nil(t, path)

	path, err = FindCallPath(ctx, fs, fs.id("a"), fs.id("d"), 3)
	require.NoError(t, err)
	assert.Len(t, path, 4)

	// Unreachable in the call direction.
	path, err = FindCallPath(ctx, fs, fs.id("d"), fs.id("a"), 0)
	require.NoError(t, err)
	assert.Nil(t, path)

	// Trivial path.
	path, err = FindCallPath(ctx, fs, fs.id("a"), fs.id("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, symbolNames(path))
}

func TestFindCallPathPrefersShortest(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b", "d"}, "b": {"c"}, "c": {"d"},
	})
	path, err := FindCallPath(context.Background(), fs, fs.id("a"), fs.id("d"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, symbolNames(path))
}

func TestDetectCycles(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"a"},
		"d": {"d"},
		"e": {"a"},
	})
	ctx := context.Background()

	cycles, err := DetectCycles(ctx, fs)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	byLen := map[int][]types.SymbolID{}
	for _, c := range cycles {
		byLen[len(c)] = c
	}
	require.Contains(t, byLen, 1)
	require.Contains(t, byLen, 3)
	assert.Equal(t, fs.id("d"), byLen[1][0])
	assert.ElementsMatch(t,
		[]types.SymbolID{fs.id("a"), fs.id("b"), fs.id("c")}, byLen[3])

	// Deterministic across runs.
	again, err := DetectCycles(ctx, fs)
	require.NoError(t, err)
	assert.Equal(t, cycles, again)
}

func TestDetectCyclesAcyclic(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b", "c"}, "b": {"c"},
	})
	cycles, err := DetectCycles(context.Background(), fs)
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestEntryAndLeafNodes(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"foo":  {"bar"},
		"solo": {},
	})
	ctx := context.Background()

	entries, err := EntryPoints(ctx, fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, symbolNames(entries))

	leaves, err := LeafNodes(ctx, fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, symbolNames(leaves))
}

func TestIsolatedCallableIsNeitherEntryNorLeaf(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"foo":  {"bar"},
		"solo": {},
	})
	ctx := context.Background()

	entries, err := EntryPoints(ctx, fs)
	require.NoError(t, err)
	assert.NotContains(t, symbolNames(entries), "solo")

	leaves, err := LeafNodes(ctx, fs)
	require.NoError(t, err)
	assert.NotContains(t, symbolNames(leaves), "solo")

	m, err := ComputeMetrics(ctx, fs, fs.id("solo"), 0)
	require.NoError(t, err)
	assert.False(t, m.IsEntryPoint)
	assert.False(t, m.IsLeaf)
}

func TestUsageStats(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"c"}, "b": {"c"},
	})
	usage, err := UsageStats(context.Background(), fs, fs.id("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.Count)
	assert.Len(t, usage.Sites, 2)
	assert.Equal(t, "c", usage.Name)
}

func TestComputeMetrics(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"b"},
	})
	ctx := context.Background()

	m, err := ComputeMetrics(ctx, fs, fs.id("b"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, m.FanIn)
	assert.Equal(t, 1, m.FanOut)
	assert.True(t, m.InCycle)
	assert.False(t, m.IsEntryPoint)
	assert.False(t, m.IsLeaf)

	m, err = ComputeMetrics(ctx, fs, fs.id("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.FanIn)
	assert.False(t, m.InCycle)
	assert.Equal(t, 2, m.TransitiveCallees)
	assert.True(t, m.IsEntryPoint)
}

func TestComputeMetricsDepthBound(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"d"},
	})
	m, err := ComputeMetrics(context.Background(), fs, fs.id("a"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TransitiveCallees)

	leaf, err := ComputeMetrics(context.Background(), fs, fs.id("d"), 0)
	require.NoError(t, err)
	assert.True(t, leaf.IsLeaf)
}

func TestComputeMetricsSelfRecursion(t *testing.T) {
	fs := newFakeStore(map[string][]string{"f": {"f"}})
	m, err := ComputeMetrics(context.Background(), fs, fs.id("f"), 0)
	require.NoError(t, err)
	assert.True(t, m.InCycle)
}

func TestCyclesThrough(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"a"},
		"d": {"e"}, "e": {},
	})
	ctx := context.Background()

	cycles, err := CyclesThrough(ctx, fs, fs.id("a"))
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t,
		[]types.SymbolID{fs.id("a"), fs.id("b"), fs.id("c")}, cycles[0])

	none, err := CyclesThrough(ctx, fs, fs.id("d"))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = CyclesThrough(ctx, fs, fs.id("ghost"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCyclesThroughReachesDownstreamCycle(t *testing.T) {
	// f calls into a cycle it does not belong to.
	fs := newFakeStore(map[string][]string{
		"f": {"g"}, "g": {"h"}, "h": {"g"},
		"x": {"y"}, "y": {"x"},
	})
	ctx := context.Background()

	cycles, err := CyclesThrough(ctx, fs, fs.id("f"))
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t,
		[]types.SymbolID{fs.id("g"), fs.id("h")}, cycles[0])

	// Cycles upstream of the symbol are not reachable.
	cycles, err = CyclesThrough(ctx, fs, fs.id("y"))
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t,
		[]types.SymbolID{fs.id("x"), fs.id("y")}, cycles[0])
}

func TestAllUsageStats(t *testing.T) {
	fs := newFakeStore(map[string][]string{
		"a": {"c"}, "b": {"c", "d"},
	})
	usages, err := AllUsageStats(context.Background(), fs)
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, "c", usages[0].Name)
	assert.Equal(t, int64(2), usages[0].Count)
	assert.Equal(t, "d", usages[1].Name)
	assert.Equal(t, int64(1), usages[1].Count)
}
