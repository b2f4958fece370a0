// Package vecindex is a small persistent vector index for symbol
// embeddings. Vectors live in memory for brute-force cosine search and
// are flushed to a single binary file with an atomic rename, so a crash
// mid-flush leaves the previous snapshot intact.
package vecindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// File format: magic, format version, dimension, record count, then one
// record per vector: id length, id bytes, dimension float32 values.
// All integers and floats are little-endian.
const (
	fileMagic     = "CAVX"
	formatVersion = uint32(1)
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrBadFormat         = errors.New("malformed vector index file")
)

// Hit is one nearest-neighbor result
type Hit struct {
	ID    types.SymbolID
	Score float64 // cosine similarity, higher is closer
}

// Index holds the vectors for one project
type Index struct {
	mu        sync.RWMutex
	path      string
	dimension int
	vectors   map[types.SymbolID][]float32
	dirty     bool
}

// Open loads the index at path, or returns an empty index when the file
// does not exist yet. dimension fixes the width of every vector stored.
func Open(path string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}
	idx := &Index{
		path:      path,
		dimension: dimension,
		vectors:   make(map[types.SymbolID][]float32),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := idx.load(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) load(r io.Reader) error {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if string(magic) != fileMagic {
		return fmt.Errorf("%w: bad magic %q", ErrBadFormat, magic)
	}

	var version, dimension, count uint32
	for _, field := range []*uint32{&version, &dimension, &count} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadFormat, version)
	}
	if int(dimension) != idx.dimension {
		return fmt.Errorf("%w: file has dimension %d, index expects %d",
			ErrDimensionMismatch, dimension, idx.dimension)
	}

	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		vector := make([]float32, idx.dimension)
		if err := binary.Read(r, binary.LittleEndian, vector); err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		idx.vectors[types.SymbolID(id)] = vector
	}
	return nil
}

// Upsert stores or replaces the vector for a symbol
func (idx *Index) Upsert(id types.SymbolID, vector []float32) error {
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), idx.dimension)
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[id] = stored
	idx.dirty = true
	return nil
}

// Remove drops the vector for a symbol. Unknown ids are a no-op.
func (idx *Index) Remove(id types.SymbolID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[id]; ok {
		delete(idx.vectors, id)
		idx.dirty = true
	}
}

// Len returns the number of stored vectors
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// KNN returns the k nearest vectors by cosine similarity, best first.
// Ties break on symbol id so results are stable.
func (idx *Index) KNN(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	hits := make([]Hit, 0, len(idx.vectors))
	for id, vector := range idx.vectors {
		hits = append(hits, Hit{ID: id, Score: cosine(query, vector)})
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Flush writes the index to disk when it changed since the last flush.
// The write goes to a temp file in the same directory followed by a
// rename.
func (idx *Index) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(idx.path), ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if err := idx.save(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush vectors: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		return fmt.Errorf("failed to replace vector index: %w", err)
	}

	idx.dirty = false
	return nil
}

func (idx *Index) save(w io.Writer) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	header := []uint32{formatVersion, uint32(idx.dimension), uint32(len(idx.vectors))}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("failed to write vectors: %w", err)
		}
	}

	// Sorted ids keep the file byte-stable for identical contents.
	ids := make([]types.SymbolID, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(id))); err != nil {
			return fmt.Errorf("failed to write vectors: %w", err)
		}
		if _, err := w.Write([]byte(id)); err != nil {
			return fmt.Errorf("failed to write vectors: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, idx.vectors[id]); err != nil {
			return fmt.Errorf("failed to write vectors: %w", err)
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
