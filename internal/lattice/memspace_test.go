package lattice

import "testing"

func TestMemSpaceIDRoundTrip(t *testing.T) {
	space := NewMemSpace([]int{4, 3, 5})
	index := []int{2, 1, 4}
	id := space.IDOf(index)
	decoded := space.IndexOf(id)
	for i := range index {
		if decoded[i] != index[i] {
			t.Fatalf("index round trip mismatch at %d: got %d, want %d", i, decoded[i], index[i])
		}
	}
}

func TestMemSpaceSuccessorsPredecessors(t *testing.T) {
	space := NewMemSpace([]int{2, 2})
	origin := space.IDOf([]int{0, 0})

	succ := space.Successors(origin)
	if len(succ) != 2 {
		t.Fatalf("expected 2 successors from the bottom of a 2x2 lattice, got %d", len(succ))
	}

	top := space.IDOf([]int{1, 1})
	pred := space.Predecessors(top)
	if len(pred) != 2 {
		t.Fatalf("expected 2 predecessors at the top of a 2x2 lattice, got %d", len(pred))
	}

	// The top of the lattice has no successors; the bottom has no
	// predecessors.
	if got := space.Successors(top); len(got) != 0 {
		t.Fatalf("expected no successors at the top, got %v", got)
	}
	if got := space.Predecessors(origin); len(got) != 0 {
		t.Fatalf("expected no predecessors at the bottom, got %v", got)
	}
}

func TestMemSpaceGlobalOptimum(t *testing.T) {
	space := NewMemSpace([]int{2})
	if _, ok := space.GlobalOptimum(); ok {
		t.Fatal("expected no global optimum before one is set")
	}
	space.SetGlobalOptimum(1)
	id, ok := space.GlobalOptimum()
	if !ok || id != 1 {
		t.Fatalf("expected global optimum 1, got %d ok=%v", id, ok)
	}
}
