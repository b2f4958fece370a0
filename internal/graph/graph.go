package graph

import (
	"context"

	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/pkg/types"
)

// Store is the slice of the storage interface the graph algorithms need.
// Everything here is a pure function over it, so any backend that can
// answer these queries gets the full set of traversals.
type Store interface {
	GetSymbol(ctx context.Context, id types.SymbolID) (types.Symbol, error)
	GetCallers(ctx context.Context, id types.SymbolID) ([]types.Symbol, error)
	GetCallees(ctx context.Context, id types.SymbolID) ([]types.Symbol, error)
	GetReferencesTo(ctx context.Context, id types.SymbolID) ([]types.RefSite, error)
	GetReferenceCount(ctx context.Context, id types.SymbolID) (int64, error)
	ListCallEdges(ctx context.Context) ([]storage.CallEdge, error)
	ListCallables(ctx context.Context) ([]types.Symbol, error)
	GetTree(ctx context.Context) (types.Tree, error)
}

// Node is a symbol reached by a traversal, with the number of call edges
// between it and the start symbol.
type Node struct {
	Symbol types.Symbol
	Depth  int
}

// TransitiveCallers returns every symbol that can reach the given symbol
// through call edges, breadth-first, closest first. maxDepth bounds the
// number of edges followed; 0 means unlimited.
func TransitiveCallers(ctx context.Context, store Store, id types.SymbolID, maxDepth int) ([]Node, error) {
	return traverse(ctx, store, id, maxDepth, store.GetCallers)
}

// TransitiveCallees returns every symbol reachable from the given symbol
// through call edges, breadth-first, closest first. maxDepth bounds the
// number of edges followed; 0 means unlimited.
func TransitiveCallees(ctx context.Context, store Store, id types.SymbolID, maxDepth int) ([]Node, error) {
	return traverse(ctx, store, id, maxDepth, store.GetCallees)
}

func traverse(ctx context.Context, store Store, id types.SymbolID, maxDepth int,
	neighbors func(context.Context, types.SymbolID) ([]types.Symbol, error)) ([]Node, error) {

	// Fail fast on unknown symbols instead of returning an empty result.
	if _, err := store.GetSymbol(ctx, id); err != nil {
		return nil, err
	}

	type item struct {
		id    types.SymbolID
		depth int
	}
	visited := map[types.SymbolID]bool{id: true}
	queue := []item{{id: id, depth: 0}}
	var result []Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		next, err := neighbors(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, sym := range next {
			if visited[sym.ID] {
				continue
			}
			visited[sym.ID] = true
			result = append(result, Node{Symbol: sym, Depth: cur.depth + 1})
			queue = append(queue, item{id: sym.ID, depth: cur.depth + 1})
		}
	}
	return result, nil
}

// adjacency builds the forward or reverse adjacency map from the full
// edge list.
func adjacency(edges []storage.CallEdge, reverse bool) map[types.SymbolID][]types.SymbolID {
	adj := make(map[types.SymbolID][]types.SymbolID)
	for _, e := range edges {
		if reverse {
			adj[e.To] = append(adj[e.To], e.From)
		} else {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	return adj
}
