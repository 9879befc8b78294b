package vectorindex_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"contextd/src/core/fault"
	"contextd/src/core/vectorindex"
)

func newIndex(t *testing.T, dim int) *vectorindex.Index {
	t.Helper()
	ix, err := vectorindex.New(dim, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix
}

func TestQueryRanksByCosineSimilarity(t *testing.T) {
	ix := newIndex(t, 3)
	err := ix.Add([][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := ix.Query([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 3 {
		t.Errorf("got order %d,%d; want 1,3", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by descending score")
	}
	if results[0].Score < 0.99 {
		t.Errorf("exact match scored %f, want ~1.0", results[0].Score)
	}
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ix := newIndex(t, 2)
	// Identical vectors produce identical scores.
	err := ix.Add([][]float32{{1, 1}, {1, 1}, {1, 1}}, []int64{10, 20, 30})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := ix.Query([]float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i, want := range []int64{10, 20, 30} {
		if results[i].ID != want {
			t.Errorf("results[%d].ID = %d, want %d (stable tie order)", i, results[i].ID, want)
		}
	}
}

func TestAddDimensionMismatchLeavesSnapshotUntouched(t *testing.T) {
	ix := newIndex(t, 3)
	if err := ix.Add([][]float32{{1, 0, 0}}, []int64{1}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := ix.Add([][]float32{{1, 0}}, []int64{2})
	if err == nil {
		t.Fatal("Add with wrong dimension succeeded")
	}
	if !errors.Is(err, fault.ErrValidation) {
		t.Errorf("error = %v, want fault.ErrValidation", err)
	}
	if ix.Len() != 1 {
		t.Errorf("index length = %d after failed add, want 1", ix.Len())
	}

	results, err := ix.Query([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Error("previously-served content no longer queryable after failed add")
	}
}

func TestRebuildMatchesIncrementalAdd(t *testing.T) {
	vectors := [][]float32{
		{0.2, 0.8, 0.1},
		{0.9, 0.05, 0.4},
		{0.3, 0.3, 0.3},
		{0.1, 0.2, 0.95},
		{0.7, 0.7, 0.01},
	}
	ids := []int64{1, 2, 3, 4, 5}

	incremental := newIndex(t, 3)
	for i := range vectors {
		if err := incremental.Add(vectors[i:i+1], ids[i:i+1]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	rebuilt := newIndex(t, 3)
	if err := rebuilt.Rebuild(vectors, ids); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	queries := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0.5}}
	for _, q := range queries {
		a, err := incremental.Query(q, 3)
		if err != nil {
			t.Fatalf("Query incremental: %v", err)
		}
		b, err := rebuilt.Query(q, 3)
		if err != nil {
			t.Fatalf("Query rebuilt: %v", err)
		}
		if len(a) != len(b) {
			t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].ID != b[i].ID {
				t.Errorf("query %v result %d: id %d vs %d", q, i, a[i].ID, b[i].ID)
			}
			if math.Abs(a[i].Score-b[i].Score) > 1e-9 {
				t.Errorf("query %v result %d: score %f vs %f", q, i, a[i].Score, b[i].Score)
			}
		}
	}
}

func TestQueryFilteredTruncatesWithoutBroadening(t *testing.T) {
	ix := newIndex(t, 2)
	var vectors [][]float32
	var ids []int64
	for i := 0; i < 12; i++ {
		vectors = append(vectors, []float32{1, float32(i) * 0.01})
		ids = append(ids, int64(i))
	}
	if err := ix.Add(vectors, ids); err != nil {
		t.Fatalf("Add: %v", err)
	}

	even := func(id int64) bool { return id%2 == 0 }

	// k=2 with factor 3 over-fetches 6 candidates; half survive.
	results, err := ix.QueryFiltered([]float32{1, 0}, 2, even)
	if err != nil {
		t.Fatalf("QueryFiltered: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.ID%2 != 0 {
			t.Errorf("result id %d fails the predicate", r.ID)
		}
	}

	// A predicate matching one vector returns fewer than k, never widened.
	only := func(id int64) bool { return id == 11 }
	results, err = ix.QueryFiltered([]float32{1, 0}, 5, only)
	if err != nil {
		t.Fatalf("QueryFiltered: %v", err)
	}
	if len(results) > 1 {
		t.Errorf("got %d results, want at most 1", len(results))
	}
}

func TestQueryValidation(t *testing.T) {
	ix := newIndex(t, 3)

	if _, err := ix.Query([]float32{1, 0, 0}, 0); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("k=0 error = %v, want fault.ErrValidation", err)
	}
	if _, err := ix.Query([]float32{1, 0}, 3); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("wrong-dimension error = %v, want fault.ErrValidation", err)
	}

	// Empty index yields no results.
	results, err := ix.Query([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty index returned %d results", len(results))
	}
}

func TestConcurrentReadsDuringRebuild(t *testing.T) {
	ix := newIndex(t, 2)
	if err := ix.Add([][]float32{{1, 0}, {0, 1}}, []int64{1, 2}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := ix.Query([]float32{1, 0}, 2)
				if err != nil {
					t.Errorf("Query: %v", err)
					return
				}
				// A reader sees either the old 2-vector snapshot or a
				// complete rebuilt one, never a partial state.
				if len(results) != 2 && len(results) != 3 {
					t.Errorf("observed partial snapshot with %d results", len(results))
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		err := ix.Rebuild([][]float32{{1, 0}, {0, 1}, {1, 1}}, []int64{1, 2, 3})
		if err != nil {
			t.Errorf("Rebuild: %v", err)
			break
		}
		err = ix.Rebuild([][]float32{{1, 0}, {0, 1}}, []int64{1, 2})
		if err != nil {
			t.Errorf("Rebuild: %v", err)
			break
		}
	}
	close(stop)
	wg.Wait()
}
