// Package vectorindex provides an in-process nearest-neighbor index over
// chunk embeddings. Readers are lock-free: they operate on an immutable
// snapshot obtained through an atomic pointer, while writers build a new
// snapshot and swap it in.
package vectorindex

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"contextd/src/core/fault"
)

// DefaultFilterFactor controls over-fetching for filtered queries: a
// filtered query retrieves k*factor candidates before the predicate is
// applied.
const DefaultFilterFactor = 3

// Result is one nearest neighbor with its similarity score. Higher scores
// are closer.
type Result struct {
	ID    int64
	Score float64
}

// snapshot is an immutable view of the index contents. Vectors are stored
// pre-normalized so queries reduce to dot products.
type snapshot struct {
	ids     []int64
	vectors [][]float32
}

// Index holds chunk vectors of a fixed dimension and answers cosine
// similarity queries.
type Index struct {
	dim          int
	filterFactor int

	mu   sync.Mutex // serializes writers; readers never take it
	snap atomic.Pointer[snapshot]
}

// New creates an empty index for vectors of the given dimension.
func New(dim, filterFactor int) (*Index, error) {
	if dim <= 0 {
		return nil, fault.Configurationf("vector dimension must be positive, got %d", dim)
	}
	if filterFactor < 1 {
		filterFactor = DefaultFilterFactor
	}
	idx := &Index{dim: dim, filterFactor: filterFactor}
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// Dimension returns the configured vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of vectors in the currently-served snapshot.
func (ix *Index) Len() int { return len(ix.snap.Load().ids) }

// Add appends vectors to the index. The whole call fails on a dimension or
// length mismatch and the served snapshot stays untouched.
func (ix *Index) Add(vectors [][]float32, ids []int64) error {
	normalized, err := ix.prepare(vectors, ids)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := ix.snap.Load()
	next := &snapshot{
		ids:     make([]int64, 0, len(old.ids)+len(ids)),
		vectors: make([][]float32, 0, len(old.vectors)+len(vectors)),
	}
	next.ids = append(append(next.ids, old.ids...), ids...)
	next.vectors = append(append(next.vectors, old.vectors...), normalized...)

	ix.snap.Store(next)
	return nil
}

// Rebuild atomically replaces the index contents. Readers either see the
// previous snapshot or the complete new one, never an intermediate state.
func (ix *Index) Rebuild(vectors [][]float32, ids []int64) error {
	normalized, err := ix.prepare(vectors, ids)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	owned := make([]int64, len(ids))
	copy(owned, ids)
	ix.snap.Store(&snapshot{ids: owned, vectors: normalized})
	return nil
}

// Query returns up to k nearest neighbors ranked by descending similarity.
// Ties keep insertion order for reproducibility.
func (ix *Index) Query(vector []float32, k int) ([]Result, error) {
	return ix.QueryFiltered(vector, k, nil)
}

// QueryFiltered behaves like Query but applies pred to candidate IDs. It
// over-fetches k*filterFactor candidates before filtering and never widens
// the candidate set, so fewer than k results may be returned.
func (ix *Index) QueryFiltered(vector []float32, k int, pred func(id int64) bool) ([]Result, error) {
	if k <= 0 {
		return nil, fault.Validationf("k must be positive, got %d", k)
	}
	if len(vector) != ix.dim {
		return nil, fault.Validationf("query vector has dimension %d, index expects %d", len(vector), ix.dim)
	}

	snap := ix.snap.Load()
	if len(snap.ids) == 0 {
		return nil, nil
	}

	fetch := k
	if pred != nil {
		fetch = k * ix.filterFactor
	}

	q := normalize(vector)
	scored := make([]Result, len(snap.ids))
	for i, v := range snap.vectors {
		scored[i] = Result{ID: snap.ids[i], Score: dot(q, v)}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	if fetch < len(scored) {
		scored = scored[:fetch]
	}

	if pred != nil {
		kept := scored[:0]
		for _, r := range scored {
			if pred(r.ID) {
				kept = append(kept, r)
			}
		}
		scored = kept
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (ix *Index) prepare(vectors [][]float32, ids []int64) ([][]float32, error) {
	if len(vectors) != len(ids) {
		return nil, fault.Validationf("got %d vectors for %d ids", len(vectors), len(ids))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != ix.dim {
			return nil, fault.Validationf("vector %d has dimension %d, index expects %d", i, len(v), ix.dim)
		}
		normalized[i] = normalize(v)
	}
	return normalized, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
