package graph

import (
	"context"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// FindCallPath returns the shortest chain of calls from one symbol to
// another, both endpoints included. maxDepth bounds the number of call
// edges in the path; 0 means unlimited. A nil path means the target is
// unreachable within the bound.
func FindCallPath(ctx context.Context, store Store, from, to types.SymbolID, maxDepth int) ([]types.Symbol, error) {
	fromSym, err := store.GetSymbol(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := store.GetSymbol(ctx, to); err != nil {
		return nil, err
	}
	if from == to {
		return []types.Symbol{fromSym}, nil
	}

	type item struct {
		id    types.SymbolID
		depth int
	}
	parent := map[types.SymbolID]types.SymbolID{from: ""}
	symByID := map[types.SymbolID]types.Symbol{from: fromSym}
	queue := []item{{id: from, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		callees, err := store.GetCallees(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, sym := range callees {
			if _, seen := parent[sym.ID]; seen {
				continue
			}
			parent[sym.ID] = cur.id
			symByID[sym.ID] = sym
			if sym.ID == to {
				return assemblePath(parent, symByID, to), nil
			}
			queue = append(queue, item{id: sym.ID, depth: cur.depth + 1})
		}
	}
	return nil, nil
}

func assemblePath(parent map[types.SymbolID]types.SymbolID, symByID map[types.SymbolID]types.Symbol, to types.SymbolID) []types.Symbol {
	var reversed []types.Symbol
	for id := to; id != ""; id = parent[id] {
		reversed = append(reversed, symByID[id])
	}
	path := make([]types.Symbol, len(reversed))
	for i, sym := range reversed {
		path[len(path)-1-i] = sym
	}
	return path
}
