package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stashbox-io/stashbox/internal/domain"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm a", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero norm b", []float32{1, 1}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"both empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.IsNaN(got) {
				t.Fatal("cosine returned NaN")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestUpsertDimMismatch(t *testing.T) {
	x := New(3)
	err := x.Upsert("u1", "i1", []float32{1, 2})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestTopKOrderingAndLimit(t *testing.T) {
	x := New(2)
	mustUpsert(t, x, "u1", "far", []float32{0, 1})
	mustUpsert(t, x, "u1", "near", []float32{1, 0.1})
	mustUpsert(t, x, "u1", "mid", []float32{1, 1})

	got := x.TopK("u1", []float32{1, 0}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(got))
	}
	if got[0].ItemID != "near" || got[1].ItemID != "mid" {
		t.Errorf("unexpected order: %q, %q", got[0].ItemID, got[1].ItemID)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("similarities not descending")
	}
}

func TestTopKDeterministicTieBreak(t *testing.T) {
	x := New(2)
	mustUpsert(t, x, "u1", "b", []float32{1, 0})
	mustUpsert(t, x, "u1", "a", []float32{1, 0})
	mustUpsert(t, x, "u1", "c", []float32{1, 0})

	for i := 0; i < 10; i++ {
		got := x.TopK("u1", []float32{1, 0}, 3)
		if got[0].ItemID != "a" || got[1].ItemID != "b" || got[2].ItemID != "c" {
			t.Fatalf("tie-break not deterministic: %v", got)
		}
	}
}

func TestTopKOwnerIsolation(t *testing.T) {
	x := New(2)
	mustUpsert(t, x, "u1", "mine", []float32{1, 0})
	mustUpsert(t, x, "u2", "theirs", []float32{1, 0})

	got := x.TopK("u1", []float32{1, 0}, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(got))
	}
	if got[0].ItemID != "mine" {
		t.Errorf("leaked another owner's item: %q", got[0].ItemID)
	}

	if got := x.TopK("unknown", []float32{1, 0}, 10); len(got) != 0 {
		t.Errorf("expected no neighbors for unknown owner, got %d", len(got))
	}
}

func TestUpsertCopiesVector(t *testing.T) {
	x := New(2)
	vec := []float32{1, 0}
	mustUpsert(t, x, "u1", "i1", vec)
	vec[0] = 0 // mutate caller's slice

	got := x.TopK("u1", []float32{1, 0}, 1)
	if got[0].Similarity != 1 {
		t.Error("index shares memory with caller's vector")
	}
}

func TestConcurrentUpsertAndTopK(t *testing.T) {
	x := New(2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = x.Upsert("u1", fmt.Sprintf("i%d", i), []float32{float32(i), 1})
		}()
		go func() {
			defer wg.Done()
			x.TopK("u1", []float32{1, 0}, 5)
		}()
	}
	wg.Wait()

	if x.Size() != 50 {
		t.Errorf("expected 50 vectors, got %d", x.Size())
	}
}

func TestDelete(t *testing.T) {
	x := New(2)
	mustUpsert(t, x, "u1", "i1", []float32{1, 0})
	x.Delete("u1", "i1")
	if x.Has("u1", "i1") {
		t.Error("vector still present after delete")
	}
	x.Delete("u1", "missing") // no-op
}

func mustUpsert(t *testing.T, x *Index, ownerID, itemID string, vec []float32) {
	t.Helper()
	if err := x.Upsert(ownerID, itemID, vec); err != nil {
		t.Fatalf("Upsert(%s): %v", itemID, err)
	}
}
