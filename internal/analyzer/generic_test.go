package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/types"
)

const pySample = `import os
from collections import deque

class Stack:
    def push(self, item):
        self.items.append(item)

    def pop(self):
        return self.items.pop()

def main():
    s = Stack()
    s.push(1)
    print(s.pop())
`

func TestGenericExtractSymbols_Python(t *testing.T) {
	a := NewGeneric()
	syms, err := a.ExtractSymbols([]byte(pySample))
	require.NoError(t, err)

	stack := findSymbol(t, syms, "Stack")
	assert.Equal(t, types.KindClass, stack.Kind)

	push := findSymbol(t, syms, "Stack.push")
	assert.Equal(t, types.KindMethod, push.Kind)
	assert.Equal(t, "Stack", push.Parent)

	main := findSymbol(t, syms, "main")
	assert.Equal(t, types.KindFunction, main.Kind)
	assert.Empty(t, main.Parent)
}

func TestGenericExtractReferences_Python(t *testing.T) {
	a := NewGeneric()
	refs, err := a.ExtractReferences([]byte(pySample))
	require.NoError(t, err)

	var calls, imports []string
	for _, r := range refs {
		switch r.Kind {
		case types.RefCall:
			calls = append(calls, r.TargetName)
		case types.RefImport:
			imports = append(imports, r.TargetName)
		}
	}

	assert.Contains(t, imports, "os")
	assert.Contains(t, imports, "collections")
	assert.Contains(t, calls, "Stack")
	assert.Contains(t, calls, "push")
	assert.Contains(t, calls, "print")
	// Keywords and definition lines are not call sites.
	assert.NotContains(t, calls, "def")
	assert.NotContains(t, calls, "return")
}

func TestGenericExtractSymbols_RustLike(t *testing.T) {
	src := `struct Point {
    x: f64,
}

pub fn distance(a: Point, b: Point) -> f64 {
    hypot(a.x, b.x)
}
`
	syms, err := NewGeneric().ExtractSymbols([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, types.KindStruct, findSymbol(t, syms, "Point").Kind)
	assert.Equal(t, types.KindFunction, findSymbol(t, syms, "distance").Kind)
}

func TestGenericExtractSymbols_Empty(t *testing.T) {
	syms, err := NewGeneric().ExtractSymbols(nil)
	require.NoError(t, err)
	assert.Empty(t, syms)
}
