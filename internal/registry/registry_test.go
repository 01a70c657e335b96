package registry

import (
	"testing"

	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/output"
	"github.com/rawblock/anonyengine/pkg/models"
)

type stubChecker struct {
	calls int
}

func (s *stubChecker) Apply(t *lattice.Transformation) (*models.TransformedData, error) {
	s.calls++
	return &models.TransformedData{
		Generalized: [][]int32{{0}, {0}},
		Anonymous:   true,
	}, nil
}

func (s *stubChecker) ApplyWithDictionary(t *lattice.Transformation, dict map[int]int) (*models.TransformedData, error) {
	return s.Apply(t)
}

func (s *stubChecker) Reset() {}

func TestOutputCachesPerNode(t *testing.T) {
	space := lattice.NewMemSpace([]int{2})
	node := space.TransformationFor(models.GeneralizationVector{0})
	reg := New()
	chk := &stubChecker{}

	h1, err := reg.Output(node, chk, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	h2, err := reg.Output(node, chk, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected the second Output call to reuse the cached handle")
	}
	if chk.calls != 1 {
		t.Fatalf("expected the checker to be applied exactly once, got %d calls", chk.calls)
	}
}

func TestOutputRejectsDifferentNodeWhileLocked(t *testing.T) {
	space := lattice.NewMemSpace([]int{2})
	nodeA := space.TransformationFor(models.GeneralizationVector{0})
	nodeB := space.TransformationFor(models.GeneralizationVector{1})
	reg := New()
	chk := &stubChecker{}

	if _, err := reg.Output(nodeA, chk, false); err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if err := reg.Lock(nodeA); err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	if _, err := reg.Output(nodeB, chk, false); err != ErrBufferLocked {
		t.Fatalf("expected ErrBufferLocked, got %v", err)
	}

	// A fork request must also fail while the registry is locked: it must
	// never be able to observe a buffer an in-progress optimization is in
	// the middle of rewriting.
	if _, err := reg.Output(nodeB, chk, true); err != ErrBufferLocked {
		t.Fatalf("expected fork to fail with ErrBufferLocked while locked, got %v", err)
	}
}

func TestOutputReleasesOptimizedCacheAndReapplies(t *testing.T) {
	space := lattice.NewMemSpace([]int{2})
	node := space.TransformationFor(models.GeneralizationVector{0})
	reg := New()
	chk := &stubChecker{}

	original, err := reg.Output(node, chk, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if err := reg.Lock(node); err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	optimized := original.Refine(output.NewOutputBuffer([][]int32{{0}, {0}}, nil))
	if err := reg.Replace(optimized); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if err := reg.Unlock(); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	h, err := reg.Output(node, chk, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if h.Optimized() {
		t.Fatal("expected a fresh Output call to re-apply rather than return the stale optimized handle")
	}
	if chk.calls != 2 {
		t.Fatalf("expected the checker to be re-applied once the optimized cache was released, got %d calls", chk.calls)
	}
}

func TestRollbackRestoresPreLockState(t *testing.T) {
	space := lattice.NewMemSpace([]int{2})
	node := space.TransformationFor(models.GeneralizationVector{0})
	reg := New()
	chk := &stubChecker{}

	original, err := reg.Output(node, chk, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if err := reg.Lock(node); err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	replacement := output.NewDataHandleOutput(output.NewOutputBuffer([][]int32{{1}}, nil))
	if err := reg.Replace(replacement); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if err := reg.Rollback(); err != nil {
		t.Fatalf("Rollback returned error: %v", err)
	}

	current, ok := reg.Current()
	if !ok || current != original {
		t.Fatal("expected Rollback to restore the pre-lock handle")
	}
	if reg.IsLocked() {
		t.Fatal("expected Rollback to release the lock")
	}
}

func TestUnlockWithoutLockFails(t *testing.T) {
	reg := New()
	if err := reg.Unlock(); err != ErrNotLocked {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
}
