// Package checker implements the NodeChecker collaborator: it applies
// a lattice.Transformation to the working data, producing a scored,
// privacy-evaluated models.TransformedData bundle and updating the
// Transformation's anonymity bitmask. The equivalence-class grouping
// buckets rows by a derived key and computes per-bucket aggregates, the
// key being a row's generalized quasi-identifier tuple.
package checker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/pkg/models"
)

// NodeChecker is the external collaborator a LocalRecodingOptimizer and the
// lattice search apply a Transformation through.
type NodeChecker interface {
	// Apply generalizes, microaggregates and privacy-evaluates t against
	// the checker's current DataManager, updating t's anonymity properties
	// and information-loss cells, and returns the resulting buffer.
	Apply(t *lattice.Transformation) (*models.TransformedData, error)

	// ApplyWithDictionary behaves like Apply but overrides individual
	// columns' generalization levels (keyed by column index) without
	// constructing a distinct lattice node — the mechanism local recoding
	// uses to test a single equivalence class's refinement in isolation
	// without perturbing the rest of the buffer.
	ApplyWithDictionary(t *lattice.Transformation, dictionary map[int]int) (*models.TransformedData, error)

	// Reset drops the checker's application cache. A fresh checker bound
	// to a projected DataManager (local recoding's inner run) starts with
	// an empty cache; Reset lets a long-lived checker be reused across
	// unrelated runs without leaking state between them.
	Reset()
}

// Checker is the reference NodeChecker.
type Checker struct {
	manager    datamgr.DataManager
	def        *definition.DataDefinition
	met        metric.Metric
	cfg        *config.AnonymizationConfig
	qiColumns  []int // column indices in the generalized matrix that are quasi-identifiers

	mu    sync.Mutex
	cache map[int64]*models.TransformedData
}

// New builds a Checker over the given collaborators. qiColumns identifies
// which columns of manager.GeneralizedMatrix() are quasi-identifiers, in
// the same order as a Transformation's generalization vector.
func New(manager datamgr.DataManager, def *definition.DataDefinition, met metric.Metric, cfg *config.AnonymizationConfig, qiColumns []int) *Checker {
	return &Checker{
		manager:   manager,
		def:       def,
		met:       met,
		cfg:       cfg,
		qiColumns: append([]int(nil), qiColumns...),
		cache:     make(map[int64]*models.TransformedData),
	}
}

func (c *Checker) Reset() {
	c.mu.Lock()
	c.cache = make(map[int64]*models.TransformedData)
	c.mu.Unlock()
}

func (c *Checker) Apply(t *lattice.Transformation) (*models.TransformedData, error) {
	c.mu.Lock()
	if cached, ok := c.cache[t.ID()]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, anonymous, kAnonymous, err := c.apply(t.Generalization(), nil)
	if err != nil {
		return nil, err
	}

	c.finish(t, result, anonymous, kAnonymous)

	c.mu.Lock()
	c.cache[t.ID()] = result
	c.mu.Unlock()
	return result, nil
}

func (c *Checker) ApplyWithDictionary(t *lattice.Transformation, dictionary map[int]int) (*models.TransformedData, error) {
	result, anonymous, kAnonymous, err := c.apply(t.Generalization(), dictionary)
	if err != nil {
		return nil, err
	}
	// A dictionary-overridden application tests a hypothetical refinement;
	// it never writes back to the lattice node's own cells.
	_ = anonymous
	_ = kAnonymous
	return result, nil
}

func (c *Checker) apply(generalization models.GeneralizationVector, dictionary map[int]int) (*models.TransformedData, bool, bool, error) {
	rawRows := c.manager.GeneralizedMatrix()
	hierarchies := c.manager.Hierarchies()
	numRows := len(rawRows)
	if numRows == 0 {
		return &models.TransformedData{Anonymous: true, KAnonymous: true}, true, true, nil
	}
	numCols := len(c.qiColumns)

	generalized := make([][]int32, numRows)
	for r := 0; r < numRows; r++ {
		generalized[r] = make([]int32, numCols)
		for ci, col := range c.qiColumns {
			level := 0
			if ci < len(generalization) {
				level = generalization[ci]
			}
			if dictionary != nil {
				if override, ok := dictionary[ci]; ok {
					level = override
				}
			}
			if col >= len(hierarchies) {
				return nil, false, false, fmt.Errorf("checker: column %d has no hierarchy", col)
			}
			generalized[r][ci] = hierarchies[col].Generalize(level, rawRows[r][col])
		}
	}

	classes := groupByTuple(generalized)

	anonymous := true
	kAnonymous := true
	minGroup := c.cfg.MinimalGroupSize()
	suppressed := 0

	for _, rows := range classes {
		stats := models.EquivalenceClassStats{Size: len(rows), RowIndices: rows}
		satisfied := true
		for _, pm := range c.cfg.PrivacyModels() {
			if !pm.Satisfied(stats) {
				satisfied = false
				if !pm.SupportsLocalRecoding() {
					anonymous = false
				}
			}
		}
		if minGroup > 0 && stats.Size < minGroup {
			kAnonymous = false
		}
		if !satisfied {
			for _, r := range rows {
				models.SetOutlierRow(generalized, r, true)
			}
			suppressed += len(rows)
		}
	}

	if c.cfg.MaxOutliers() >= 0 && numRows > 0 {
		fraction := float64(suppressed) / float64(numRows)
		if fraction > c.cfg.MaxOutliers() {
			anonymous = false
		}
	}

	microaggregated := c.microaggregate(generalized, classes)

	il, lb, _ := c.met.Evaluate(generalized, microaggregated)

	return &models.TransformedData{
		Generalized:     generalized,
		Microaggregated: microaggregated,
		Anonymous:       anonymous,
		KAnonymous:      kAnonymous,
		InformationLoss: il,
		LowerBound:      lb,
	}, anonymous, kAnonymous, nil
}

func (c *Checker) microaggregate(generalized [][]int32, classes map[string][]int) [][]float64 {
	cols := c.def.QuasiIdentifiersWithMicroaggregation()
	if len(cols) == 0 {
		return nil
	}
	analyzed := c.manager.AnalyzedMatrix()
	if analyzed == nil {
		return nil
	}
	numRows := len(generalized)
	out := make([][]float64, numRows)
	for i := range out {
		out[i] = make([]float64, len(cols))
	}

	for ci, name := range cols {
		fn, ok := c.def.MicroAggregationFunction(name)
		if !ok {
			continue
		}
		for _, rows := range classes {
			values := make([]float64, 0, len(rows))
			for _, r := range rows {
				if ci < len(analyzed[r]) {
					values = append(values, analyzed[r][ci])
				}
			}
			agg := fn.Function()(values)
			for _, r := range rows {
				out[r][ci] = agg
			}
		}
	}
	return out
}

// finish updates t's lattice cells: SetChecked records the scores (and
// panics per P3 if information loss is observed changing), then the
// anonymity flags propagate through the bitmask per T3.
func (c *Checker) finish(t *lattice.Transformation, result *models.TransformedData, anonymous, kAnonymous bool) {
	t.SetChecked(result.InformationLoss, result.LowerBound)
	if anonymous {
		t.SetProperty(lattice.PropertyAnonymous)
	} else {
		t.SetProperty(lattice.PropertyNotAnonymous)
	}
	if kAnonymous {
		t.SetProperty(lattice.PropertyKAnonymous)
	} else {
		t.SetProperty(lattice.PropertyNotKAnonymous)
	}
}

// groupByTuple buckets row indices by their generalized quasi-identifier
// tuple, masking off the outlier flag bit so a row's class membership never
// depends on whether it was already suppressed by an earlier pass.
func groupByTuple(generalized [][]int32) map[string][]int {
	classes := make(map[string][]int)
	for r, row := range generalized {
		key := tupleKey(row)
		classes[key] = append(classes[key], r)
	}
	return classes
}

func tupleKey(row []int32) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		if i == 0 {
			v &^= models.OutlierMask
		}
		b.WriteString(strconv.FormatInt(int64(v), 10))
	}
	return b.String()
}
