package optimizer

import (
	"testing"

	"github.com/rawblock/anonyengine/internal/checker"
	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/internal/registry"
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

// buildFixture constructs a 6-row, single-column dataset where rows
// {0,1,2,3} share raw value 0 (a class of 4, satisfying k=3) and rows
// {4,5} are singletons (k=3 violated), so the zero-generalization node has
// exactly two outlier rows local recoding can try to repair.
func buildFixture(t *testing.T, k int, maxOutliers float64) (*lattice.Transformation, *registry.ResultRegistry, Collaborators) {
	t.Helper()
	rows := [][]int{{0}, {0}, {0}, {0}, {4}, {8}}
	hierarchies := []datamgr.Hierarchy{linearHierarchy{height: 4}}
	manager := datamgr.NewMemManager(rows, nil, nil, hierarchies)
	def := definition.New([]string{"qi0"}, nil)
	cfg := config.New([]config.PrivacyModel{kAnonModel{k: k}}, maxOutliers, 0)
	met := metric.NewLossMetric([]metric.ColumnWeight{{Name: "qi0", Weight: 1, Height: 4}}, 0)
	chk := checker.New(manager, def, met, cfg, []int{0})

	space := lattice.NewMemSpace([]int{4})
	node := space.TransformationFor(models.GeneralizationVector{0})
	if _, err := chk.Apply(node); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	col := Collaborators{Checker: chk, Manager: manager, Definition: def, Metric: met, Config: cfg, QIColumns: []int{0}}
	return node, registry.New(), col
}

func TestIsOptimizableEvaluatesAllFourPreconditions(t *testing.T) {
	node, reg, col := buildFixture(t, 3, 0)
	handle, err := reg.Output(node, col.Checker, false)
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}

	if !IsOptimizable(handle, col.Manager, col.Config) {
		t.Fatal("expected a handle with outliers >= minimalGroupSize and every model local-recoding-capable to be optimizable")
	}
	if IsOptimizable(nil, col.Manager, col.Config) {
		t.Fatal("expected a nil handle to be not optimizable")
	}

	noRecodeCfg := config.New([]config.PrivacyModel{noLocalRecodingModel{k: 3}}, 0, 0)
	if IsOptimizable(handle, col.Manager, noRecodeCfg) {
		t.Fatal("expected a config whose privacy model rejects local recoding to be not optimizable")
	}

	// minimalGroupSize=100 exceeds the fixture's 2 outlier rows: the
	// documented (unusual) rejection direction must still reject here.
	floorCfg := config.New([]config.PrivacyModel{kAnonModel{k: 3}}, 0, 100)
	if IsOptimizable(handle, col.Manager, floorCfg) {
		t.Fatal("expected outliers below minimalGroupSize to be not optimizable")
	}
}

type noLocalRecodingModel struct{ k int }

func (m noLocalRecodingModel) Name() string               { return "no-local-recoding" }
func (m noLocalRecodingModel) SupportsLocalRecoding() bool { return false }
func (m noLocalRecodingModel) Satisfied(stats models.EquivalenceClassStats) bool {
	return stats.Size >= m.k
}

func TestOptimizeFastNoOpWhenNoOutliers(t *testing.T) {
	// k=4 is satisfied by the single class of 4 rows {0,0,0,0}; drop the
	// singleton rows entirely by reusing a dataset with none.
	rows := [][]int{{0}, {0}, {0}, {0}}
	hierarchies := []datamgr.Hierarchy{linearHierarchy{height: 4}}
	manager := datamgr.NewMemManager(rows, nil, nil, hierarchies)
	def := definition.New([]string{"qi0"}, nil)
	cfg := config.New([]config.PrivacyModel{kAnonModel{k: 4}}, 1.0, 0)
	met := metric.NewLossMetric([]metric.ColumnWeight{{Name: "qi0", Weight: 1, Height: 4}}, 0)
	chk := checker.New(manager, def, met, cfg, []int{0})
	space := lattice.NewMemSpace([]int{4})
	node := space.TransformationFor(models.GeneralizationVector{0})
	if _, err := chk.Apply(node); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	reg := registry.New()
	col := Collaborators{Checker: chk, Manager: manager, Definition: def, Metric: met, Config: cfg, QIColumns: []int{0}}

	adapted, err := Optimize(node, reg, col)
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if adapted != 0 {
		t.Fatalf("expected a no-op optimize on an already-anonymous node, got %d adapted", adapted)
	}
	if reg.IsLocked() {
		t.Fatal("expected the registry to be unlocked after a no-op optimize")
	}
}

func TestOptimizeFastRejectsWhenAlreadyLocked(t *testing.T) {
	node, reg, col := buildFixture(t, 3, 0)
	if err := reg.Lock(node); err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	_, err := OptimizeFast(node, reg, col, 1.0, col.Config.GSFactor())
	if err != ErrBufferLocked {
		t.Fatalf("expected ErrBufferLocked, got %v", err)
	}
}

func TestClampMaxOutliers(t *testing.T) {
	cases := []struct {
		records           float64
		totalRows, subset int
		want              float64
	}{
		{1.0, 100, 100, 0.0},  // records covers the whole dataset, full subset
		{0.0, 100, 10, 1.0},   // no records budget at all -> fully permissive
		{0.5, 100, 25, 0.0},   // absolute=50 > subset=25 -> clamped to 1 -> maxOutliers 0
	}
	for _, c := range cases {
		got := clampMaxOutliers(c.records, c.totalRows, c.subset)
		if got != c.want {
			t.Errorf("clampMaxOutliers(%v, %d, %d) = %v, want %v", c.records, c.totalRows, c.subset, got, c.want)
		}
	}
}
