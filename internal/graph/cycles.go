package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// DetectCycles reports call cycles in the index, including self-recursion.
// One cycle is reported per back edge found by the depth-first walk, which
// covers every strongly connected region without enumerating all
// permutations of it. Cycles are rotated so the smallest symbol id comes
// first and the list is sorted, so repeated runs over the same index
// return identical output.
func DetectCycles(ctx context.Context, store Store) ([][]types.SymbolID, error) {
	edges, err := store.ListCallEdges(ctx)
	if err != nil {
		return nil, err
	}
	adj := adjacency(edges, false)

	nodes := make([]types.SymbolID, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[types.SymbolID]int)
	var stack []types.SymbolID
	seen := make(map[string]bool)
	var cycles [][]types.SymbolID

	var visit func(id types.SymbolID)
	visit = func(id types.SymbolID) {
		state[id] = inStack
		stack = append(stack, id)

		for _, next := range adj[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				cycle := extractCycle(stack, next)
				key := cycleKey(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range nodes {
		if state[id] == unvisited {
			visit(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycleKey(cycles[i]) < cycleKey(cycles[j])
	})
	return cycles, nil
}

// CyclesThrough reports the call cycles reachable from a given symbol,
// walking the call direction. This covers both cycles the symbol sits in
// and cycles further down its call tree. The symbol must exist; a symbol
// with no cycle downstream yields an empty list.
func CyclesThrough(ctx context.Context, store Store, id types.SymbolID) ([][]types.SymbolID, error) {
	if _, err := store.GetSymbol(ctx, id); err != nil {
		return nil, err
	}
	edges, err := store.ListCallEdges(ctx)
	if err != nil {
		return nil, err
	}
	adj := adjacency(edges, false)

	reachable := map[types.SymbolID]bool{id: true}
	queue := []types.SymbolID{id}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	all, err := DetectCycles(ctx, store)
	if err != nil {
		return nil, err
	}
	var cycles [][]types.SymbolID
	for _, cycle := range all {
		for _, member := range cycle {
			if reachable[member] {
				cycles = append(cycles, cycle)
				break
			}
		}
	}
	return cycles, nil
}

// extractCycle slices the current DFS stack from the first occurrence of
// start and rotates the cycle so its smallest id comes first.
func extractCycle(stack []types.SymbolID, start types.SymbolID) []types.SymbolID {
	from := 0
	for i, id := range stack {
		if id == start {
			from = i
			break
		}
	}
	cycle := append([]types.SymbolID(nil), stack[from:]...)

	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	rotated := make([]types.SymbolID, 0, len(cycle))
	rotated = append(rotated, cycle[min:]...)
	rotated = append(rotated, cycle[:min]...)
	return rotated
}

func cycleKey(cycle []types.SymbolID) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = string(id)
	}
	return strings.Join(parts, "->")
}
