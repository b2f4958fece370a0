package graph

import (
	"context"
	"sort"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// Metrics bundles the per-symbol graph measurements served by a single
// query.
type Metrics struct {
	Symbol            types.Symbol
	FanIn             int
	FanOut            int
	TransitiveCallers int
	TransitiveCallees int
	References        int64
	IsEntryPoint      bool
	IsLeaf            bool
	InCycle           bool
}

// UsageStats returns how often a symbol is referenced and where
func UsageStats(ctx context.Context, store Store, id types.SymbolID) (types.SymbolUsage, error) {
	sym, err := store.GetSymbol(ctx, id)
	if err != nil {
		return types.SymbolUsage{}, err
	}
	count, err := store.GetReferenceCount(ctx, id)
	if err != nil {
		return types.SymbolUsage{}, err
	}
	sites, err := store.GetReferencesTo(ctx, id)
	if err != nil {
		return types.SymbolUsage{}, err
	}
	return types.SymbolUsage{
		SymbolID: sym.ID,
		Name:     sym.Qualified,
		Count:    count,
		Sites:    sites,
	}, nil
}

// AllUsageStats scans the whole index and returns every symbol referenced
// at least once, most referenced first.
func AllUsageStats(ctx context.Context, store Store) ([]types.SymbolUsage, error) {
	tree, err := store.GetTree(ctx)
	if err != nil {
		return nil, err
	}

	var usages []types.SymbolUsage
	var walkErr error
	tree.Walk(func(sym *types.Symbol) {
		if walkErr != nil {
			return
		}
		count, err := store.GetReferenceCount(ctx, sym.ID)
		if err != nil {
			walkErr = err
			return
		}
		if count > 0 {
			usages = append(usages, types.SymbolUsage{
				SymbolID: sym.ID,
				Name:     sym.Qualified,
				Count:    count,
			})
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.SliceStable(usages, func(i, j int) bool { return usages[i].Count > usages[j].Count })
	return usages, nil
}

// EntryPoints returns the functions and methods that call others but are
// called by nothing in the index. These are the roots of the call graph:
// main functions, handlers wired up by frameworks, exported API surface.
func EntryPoints(ctx context.Context, store Store) ([]types.Symbol, error) {
	return boundaryNodes(ctx, store, true)
}

// LeafNodes returns the functions and methods that are called but call
// nothing in the index.
func LeafNodes(ctx context.Context, store Store) ([]types.Symbol, error) {
	return boundaryNodes(ctx, store, false)
}

func boundaryNodes(ctx context.Context, store Store, incoming bool) ([]types.Symbol, error) {
	callables, err := store.ListCallables(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := store.ListCallEdges(ctx)
	if err != nil {
		return nil, err
	}

	hasCaller := make(map[types.SymbolID]bool, len(edges))
	hasCallee := make(map[types.SymbolID]bool, len(edges))
	for _, e := range edges {
		hasCaller[e.To] = true
		hasCallee[e.From] = true
	}

	// An isolated callable participates in no calls and is neither an
	// entry point nor a leaf.
	var result []types.Symbol
	for _, sym := range callables {
		if incoming {
			if !hasCaller[sym.ID] && hasCallee[sym.ID] {
				result = append(result, sym)
			}
		} else {
			if hasCaller[sym.ID] && !hasCallee[sym.ID] {
				result = append(result, sym)
			}
		}
	}
	return result, nil
}

// ComputeMetrics gathers the direct and transitive graph measurements for
// one symbol. maxDepth bounds the transitive walks; 0 means unlimited.
func ComputeMetrics(ctx context.Context, store Store, id types.SymbolID, maxDepth int) (Metrics, error) {
	sym, err := store.GetSymbol(ctx, id)
	if err != nil {
		return Metrics{}, err
	}

	callers, err := store.GetCallers(ctx, id)
	if err != nil {
		return Metrics{}, err
	}
	callees, err := store.GetCallees(ctx, id)
	if err != nil {
		return Metrics{}, err
	}
	refCount, err := store.GetReferenceCount(ctx, id)
	if err != nil {
		return Metrics{}, err
	}
	transUp, err := TransitiveCallers(ctx, store, id, maxDepth)
	if err != nil {
		return Metrics{}, err
	}
	transDown, err := TransitiveCallees(ctx, store, id, maxDepth)
	if err != nil {
		return Metrics{}, err
	}

	// The symbol sits in a cycle when it calls itself directly, or when
	// some symbol is both upstream and downstream of it.
	inCycle := false
	for _, callee := range callees {
		if callee.ID == id {
			inCycle = true
			break
		}
	}
	if !inCycle {
		downstream := make(map[types.SymbolID]bool, len(transDown))
		for _, node := range transDown {
			downstream[node.Symbol.ID] = true
		}
		for _, node := range transUp {
			if downstream[node.Symbol.ID] {
				inCycle = true
				break
			}
		}
	}

	return Metrics{
		Symbol:            sym,
		FanIn:             len(callers),
		FanOut:            len(callees),
		TransitiveCallers: len(transUp),
		TransitiveCallees: len(transDown),
		References:        refCount,
		IsEntryPoint:      len(callers) == 0 && len(callees) > 0,
		IsLeaf:            len(callers) > 0 && len(callees) == 0,
		InCycle:           inCycle,
	}, nil
}
