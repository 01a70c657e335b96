package demo

import (
	"testing"

	"github.com/rawblock/anonyengine/pkg/models"
)

func eqStats(size int) models.EquivalenceClassStats {
	rows := make([]int, size)
	for i := range rows {
		rows[i] = i
	}
	return models.EquivalenceClassStats{Size: size, RowIndices: rows}
}

func TestLinearHierarchyGeneralizesFully(t *testing.T) {
	h := NewLinearHierarchy(16)
	if h.Height() < 4 {
		t.Fatalf("expected at least 4 levels to collapse a 16-value domain, got %d", h.Height())
	}
	top := h.Height() - 1
	for raw := 0; raw < 16; raw++ {
		if h.Generalize(top, raw) != 0 {
			t.Fatalf("expected raw value %d to collapse to 0 at the top level, got %d", raw, h.Generalize(top, raw))
		}
	}
}

func TestKAnonymityModelSatisfied(t *testing.T) {
	m := KAnonymityModel{K: 3}
	satisfiedStats := eqStats(3)
	if !m.Satisfied(satisfiedStats) {
		t.Fatal("expected a class of size 3 to satisfy k=3")
	}
	if m.Satisfied(eqStats(2)) {
		t.Fatal("expected a class of size 2 to violate k=3")
	}
}

func TestEngineRunProducesAnAvailableResult(t *testing.T) {
	engine := NewEngine(40, 2, 8, 4)
	res, err := engine.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.IsAvailable() {
		t.Fatal("expected a small, dense synthetic lattice to yield a global optimum")
	}
	optimum, err := res.GlobalOptimum()
	if err != nil {
		t.Fatalf("GlobalOptimum returned error: %v", err)
	}
	handle, err := res.Output(optimum)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if handle.RowCount() != 40 {
		t.Fatalf("expected 40 rows in the output buffer, got %d", handle.RowCount())
	}
}
