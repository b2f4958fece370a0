package vecindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/types"
)

func TestUpsertAndKNN(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "vectors.bin"), 3)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Upsert("c", []float32{0.9, 0.1, 0}))

	hits, err := idx.KNN([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, types.SymbolID("a"), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, types.SymbolID("c"), hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestKNNValidation(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "vectors.bin"), 3)
	require.NoError(t, err)

	_, err = idx.KNN([]float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = idx.Upsert("a", []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	hits, err := idx.KNN([]float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestFlushAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")

	idx, err := Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("x", []float32{0.5, 0.5}))
	require.NoError(t, idx.Upsert("y", []float32{-1, 0}))
	require.NoError(t, idx.Flush())

	reopened, err := Open(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	hits, err := reopened.KNN([]float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, types.SymbolID("x"), hits[0].ID)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	idx, err := Open(path, 2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert("x", []float32{1, 0}))
	idx.Remove("x")
	idx.Remove("never-existed")
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Flush())
	reopened, err := Open(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())
}

func TestFlushSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	idx, err := Open(path, 2)
	require.NoError(t, err)

	// Nothing stored, nothing flushed.
	require.NoError(t, idx.Flush())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, idx.Upsert("x", []float32{1, 0}))
	require.NoError(t, idx.Flush())
	first, err := os.Stat(path)
	require.NoError(t, err)

	// Clean flush leaves the file untouched.
	require.NoError(t, idx.Flush())
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestOpenRejectsDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")

	idx, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("x", []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Flush())

	_, err = Open(path, 8)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a vector index"), 0o644))

	_, err := Open(path, 2)
	assert.ErrorIs(t, err, ErrBadFormat)
}
