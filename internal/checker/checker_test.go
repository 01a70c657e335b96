package checker

import (
	"testing"

	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/pkg/models"
)

type linearHierarchy struct{ height int }

func (h linearHierarchy) Height() int { return h.height }
func (h linearHierarchy) Generalize(level int, rawValue int) int32 {
	return int32(rawValue >> uint(level))
}

type kAnonModel struct{ k int }

func (m kAnonModel) Name() string               { return "k-anonymity" }
func (m kAnonModel) SupportsLocalRecoding() bool { return true }
func (m kAnonModel) Satisfied(stats models.EquivalenceClassStats) bool {
	return stats.Size >= m.k
}

func buildChecker(t *testing.T, rows [][]int, k int, maxOutliers float64) (*Checker, *lattice.MemSpace) {
	t.Helper()
	hierarchies := []datamgr.Hierarchy{linearHierarchy{height: 4}}
	manager := datamgr.NewMemManager(rows, nil, nil, hierarchies)
	def := definition.New([]string{"qi0"}, nil)
	cfg := config.New([]config.PrivacyModel{kAnonModel{k: k}}, maxOutliers, 0)
	met := metric.NewLossMetric([]metric.ColumnWeight{{Name: "qi0", Weight: 1, Height: 4}}, 0)
	chk := New(manager, def, met, cfg, []int{0})
	space := lattice.NewMemSpace([]int{4})
	return chk, space
}

func TestApplyMarksAnonymousWhenClassesSatisfyModel(t *testing.T) {
	// 4 rows, generalized at level 2 collapse to a single class of size 4.
	rows := [][]int{{0}, {1}, {2}, {3}}
	chk, space := buildChecker(t, rows, 4, 1.0)
	node := space.TransformationFor(models.GeneralizationVector{2})

	result, err := chk.Apply(node)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !result.Anonymous {
		t.Fatal("expected the fully-generalized buffer to be anonymous")
	}
	if !node.HasProperty(lattice.PropertyAnonymous) {
		t.Fatal("expected the node to carry PropertyAnonymous after Apply")
	}
	if !node.HasProperty(lattice.PropertyChecked) {
		t.Fatal("expected the node to carry PropertyChecked after Apply")
	}
}

func TestApplyMarksOutliersWhenClassTooSmall(t *testing.T) {
	// At level 0, every row is its own singleton class; k=2 cannot be met.
	rows := [][]int{{0}, {1}, {2}, {3}}
	chk, space := buildChecker(t, rows, 2, 0)
	node := space.TransformationFor(models.GeneralizationVector{0})

	result, err := chk.Apply(node)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Anonymous {
		t.Fatal("expected singleton classes under k=2 to be non-anonymous")
	}
	outliers := 0
	for r := range rows {
		if models.IsOutlierRow(result.Generalized, r) {
			outliers++
		}
	}
	if outliers != len(rows) {
		t.Fatalf("expected all %d rows flagged as outliers, got %d", len(rows), outliers)
	}
}

func TestApplyIsCachedPerNode(t *testing.T) {
	rows := [][]int{{0}, {1}, {2}, {3}}
	chk, space := buildChecker(t, rows, 4, 1.0)
	node := space.TransformationFor(models.GeneralizationVector{2})

	first, err := chk.Apply(node)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	second, err := chk.Apply(node)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if first != second {
		t.Fatal("expected a cached Apply call to return the same *models.TransformedData")
	}
}

func TestApplyWithDictionaryDoesNotMutateNode(t *testing.T) {
	rows := [][]int{{0}, {1}, {2}, {3}}
	chk, space := buildChecker(t, rows, 4, 1.0)
	node := space.TransformationFor(models.GeneralizationVector{0})

	if _, err := chk.ApplyWithDictionary(node, map[int]int{0: 2}); err != nil {
		t.Fatalf("ApplyWithDictionary returned error: %v", err)
	}
	if node.HasProperty(lattice.PropertyChecked) {
		t.Fatal("ApplyWithDictionary must not mark the node as checked")
	}
}
