// Package metric provides the information-loss scoring collaborator a
// NodeChecker consults when it applies a Transformation. The combination
// strategy fuses correlated per-column contributions and sums independent
// ones: columns sharing a dependency group are fused by taking the
// strongest signal rather than naively summing, to avoid double-counting
// correlated columns. Here the "evidence" is each quasi-identifier
// column's own generalization-level loss, and columns never share a
// dependency group in this reference metric — but the grouped-sum shape
// is preserved so a fuller metric (e.g. one that models correlated
// quasi-identifiers) can drop into the same Evaluate without changing the
// caller.
package metric

import (
	"math"

	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/pkg/models"
)

// Metric is the external collaborator computing information loss for a
// transformed buffer.
type Metric interface {
	Initialize(manager datamgr.DataManager, def *definition.DataDefinition, generalizedData [][]int, hierarchies []datamgr.Hierarchy, cfg interface{}) error
	Evaluate(generalized [][]int32, microaggregated [][]float64) (informationLoss models.Score, lowerBound models.Score, breakdown models.ScoreBreakdown)
}

// ColumnWeight is a single quasi-identifier column's contribution weight
// and dependency group, applied to its generalization-level loss.
type ColumnWeight struct {
	Name            string
	Weight          float64
	DependencyGroup int
	Height          int // number of hierarchy levels, for normalizing level -> [0,1]
}

// LossMetric is the reference Metric: normalized average generalization
// level per column, weighted and fused by dependency group, plus a
// suppression penalty for outlier rows.
type LossMetric struct {
	columns            []ColumnWeight
	suppressionWeight  float64
	initialized        bool
}

// NewLossMetric builds a metric over the given per-column weights. A
// suppressionWeight of 0 disables the outlier penalty term.
func NewLossMetric(columns []ColumnWeight, suppressionWeight float64) *LossMetric {
	return &LossMetric{columns: append([]ColumnWeight(nil), columns...), suppressionWeight: suppressionWeight}
}

// Initialize satisfies Metric. The reference implementation needs nothing
// from the manager/definition/hierarchies beyond what was supplied at
// construction, but real metrics (e.g. entropy- or loss-model-based ones)
// would build per-column statistics here at construction time.
func (m *LossMetric) Initialize(manager datamgr.DataManager, def *definition.DataDefinition, generalizedData [][]int, hierarchies []datamgr.Hierarchy, cfg interface{}) error {
	m.initialized = true
	return nil
}

// Evaluate computes a weighted, dependency-group-fused information-loss
// score for one transformed buffer.
//
// Fusion rule (grounded on EvaluateFactorGraph): within a dependency group,
// only the column contributing the maximum loss counts; independent groups
// (DependencyGroup <= 0, or each occupying its own group) sum directly.
func (m *LossMetric) Evaluate(generalized [][]int32, microaggregated [][]float64) (models.Score, models.Score, models.ScoreBreakdown) {
	breakdown := models.ScoreBreakdown{PerColumn: make(map[string]float64, len(m.columns))}

	groups := make(map[int]float64)
	groupHasValue := make(map[int]bool)
	independentGroupSeq := -1

	for colIdx, cw := range m.columns {
		if colIdx >= len(generalized[0]) {
			continue
		}
		loss := m.columnLoss(generalized, colIdx, cw)
		weighted := loss * cw.Weight
		breakdown.PerColumn[cw.Name] = weighted

		group := cw.DependencyGroup
		if group <= 0 {
			independentGroupSeq--
			group = independentGroupSeq
		}
		if !groupHasValue[group] || weighted > groups[group] {
			groups[group] = weighted
			groupHasValue[group] = true
		}
	}

	total := 0.0
	for _, v := range groups {
		total += v
	}
	breakdown.BaseInformationLoss = total

	suppressionPenalty := m.suppressionPenalty(generalized)
	breakdown.SuppressionPenalty = suppressionPenalty
	total += suppressionPenalty
	breakdown.Total = total

	il := models.FloatScore(total)
	lb := models.FloatScore(breakdown.BaseInformationLoss)
	return il, lb, breakdown
}

// columnLoss is the fraction of rows whose generalized code at colIdx
// indicates a non-zero generalization level, normalized to [0,1] by the
// column's hierarchy height. This reference metric doesn't decode the
// hierarchy level directly from the code (that mapping is owned by
// datamgr.Hierarchy at generalization time); instead it treats a higher
// numeric code as "more generalized" which holds for the demo hierarchies
// in internal/demo.
func (m *LossMetric) columnLoss(generalized [][]int32, colIdx int, cw ColumnWeight) float64 {
	if len(generalized) == 0 || cw.Height <= 1 {
		return 0
	}
	sum := 0.0
	for _, row := range generalized {
		code := row[colIdx]
		if colIdx == 0 {
			code &^= models.OutlierMask
		}
		sum += float64(code)
	}
	avg := sum / float64(len(generalized))
	return math.Min(avg/float64(cw.Height-1), 1.0)
}

func (m *LossMetric) suppressionPenalty(generalized [][]int32) float64 {
	if m.suppressionWeight == 0 || len(generalized) == 0 {
		return 0
	}
	outliers := 0
	for i := range generalized {
		if models.IsOutlierRow(generalized, i) {
			outliers++
		}
	}
	return m.suppressionWeight * float64(outliers) / float64(len(generalized))
}
