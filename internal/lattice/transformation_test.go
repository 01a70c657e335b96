package lattice

import (
	"testing"

	"github.com/rawblock/anonyengine/pkg/models"
)

func TestTransformationIdentityInvariants(t *testing.T) {
	space := NewMemSpace([]int{3, 3})
	vec := models.GeneralizationVector{1, 2}
	node := space.TransformationFor(vec)

	if !node.Generalization().Equal(vec) {
		t.Fatalf("generalization mismatch: got %v, want %v", node.Generalization(), vec)
	}
	wantID := space.IDOf(space.ToInternal(vec))
	if node.ID() != wantID {
		t.Fatalf("id mismatch: got %d, want %d", node.ID(), wantID)
	}
	if node.Level() != 3 {
		t.Fatalf("level mismatch: got %d, want 3", node.Level())
	}
}

func TestPropertyAnonymousPropagatesUpToSuccessors(t *testing.T) {
	space := NewMemSpace([]int{3, 3})
	origin := space.TransformationFor(models.GeneralizationVector{0, 0})
	origin.SetProperty(PropertyAnonymous)

	successor := space.TransformationFor(models.GeneralizationVector{1, 0})
	if !successor.HasProperty(PropertyAnonymous) {
		t.Fatal("expected PropertyAnonymous to propagate to a direct successor")
	}
	top := space.TransformationFor(models.GeneralizationVector{2, 2})
	if !top.HasProperty(PropertyAnonymous) {
		t.Fatal("expected PropertyAnonymous to propagate transitively to the top of the lattice")
	}
}

func TestPropertyNotAnonymousPropagatesDownToPredecessors(t *testing.T) {
	space := NewMemSpace([]int{3, 3})
	top := space.TransformationFor(models.GeneralizationVector{2, 2})
	top.SetProperty(PropertyNotAnonymous)

	bottom := space.TransformationFor(models.GeneralizationVector{0, 0})
	if !bottom.HasProperty(PropertyNotAnonymous) {
		t.Fatal("expected PropertyNotAnonymous to propagate down to the bottom of the lattice")
	}
}

func TestSetCheckedPanicsOnConflictingScore(t *testing.T) {
	space := NewMemSpace([]int{2})
	node := space.TransformationFor(models.GeneralizationVector{0})
	node.SetChecked(models.FloatScore(1.0), models.FloatScore(0.5))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when re-checking with a different information loss")
		}
	}()
	node.SetChecked(models.FloatScore(2.0), models.FloatScore(0.5))
}

func TestSetCheckedIdempotentWithSameScore(t *testing.T) {
	space := NewMemSpace([]int{2})
	node := space.TransformationFor(models.GeneralizationVector{0})
	node.SetChecked(models.FloatScore(1.0), models.FloatScore(0.5))
	node.SetChecked(models.FloatScore(1.0), models.FloatScore(0.5))
	if !node.HasProperty(PropertyChecked) {
		t.Fatal("expected PropertyChecked to be set")
	}
}
