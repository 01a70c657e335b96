// Package demo wires a complete, self-contained in-memory anonymization
// engine: a synthetic quasi-identifier dataset, linear generalization
// hierarchies, a k-anonymity privacy model, and an exhaustive lattice walk
// that plays the role of the external lattice-search collaborator (out of
// scope for the core itself) well enough to produce a real
// result.AnonymizationResult for demonstration and integration tests.
//
// The synthetic data generator seeds row values from crypto/rand rather
// than math/rand so demo fixtures are not trivially predictable.
package demo

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rawblock/anonyengine/internal/checker"
	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/internal/result"
	"github.com/rawblock/anonyengine/pkg/models"
)

// cryptoRandFloat64 returns a cryptographically random float64 in [0, 1).
func cryptoRandFloat64() float64 {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return 0.5
	}
	n := binary.BigEndian.Uint64(b) >> 11
	return float64(n) / float64(1<<53)
}

// LinearHierarchy generalizes a raw bucket index by right-shifting it by
// the target level, collapsing 2^level raw buckets into one generalized
// code per step. Height levels span 0..height-1.
type LinearHierarchy struct {
	height   int
	domain   int // number of distinct raw bucket values at level 0
}

// NewLinearHierarchy builds a hierarchy spanning enough levels to fully
// generalize domain distinct raw values down to a single bucket.
func NewLinearHierarchy(domain int) *LinearHierarchy {
	height := 1
	for (1 << (height - 1)) < domain {
		height++
	}
	return &LinearHierarchy{height: height, domain: domain}
}

func (h *LinearHierarchy) Height() int { return h.height }

func (h *LinearHierarchy) Generalize(level int, rawValue int) int32 {
	if level <= 0 {
		return int32(rawValue)
	}
	return int32(rawValue >> uint(level))
}

// KAnonymityModel is a minimal config.PrivacyModel requiring every
// equivalence class to have at least K rows.
type KAnonymityModel struct {
	K int
}

func (m KAnonymityModel) Name() string                 { return "k-anonymity" }
func (m KAnonymityModel) SupportsLocalRecoding() bool   { return true }
func (m KAnonymityModel) Satisfied(stats models.EquivalenceClassStats) bool {
	return stats.Size >= m.K
}

// GenerateDataset builds a synthetic generalized/analyzed/static matrix
// triple: qiCount quasi-identifier columns drawn uniformly from
// [0, domain), one microaggregated numeric column, and one static
// passthrough column.
func GenerateDataset(rows, qiCount, domain int) ([][]int, [][]float64, [][]string) {
	generalized := make([][]int, rows)
	analyzed := make([][]float64, rows)
	static := make([][]string, rows)
	for r := 0; r < rows; r++ {
		row := make([]int, qiCount)
		for c := 0; c < qiCount; c++ {
			row[c] = int(cryptoRandFloat64() * float64(domain))
		}
		generalized[r] = row
		analyzed[r] = []float64{cryptoRandFloat64() * 100000}
		static[r] = []string{fmt.Sprintf("row-%d", r)}
	}
	return generalized, analyzed, static
}

// Engine bundles a complete demo anonymization run: the dataset, the
// solution space, and the collaborators a checker needs.
type Engine struct {
	Space      *lattice.MemSpace
	Manager    datamgr.DataManager
	Definition *definition.DataDefinition
	Config     *config.AnonymizationConfig
	Metric     metric.Metric
	Checker    checker.NodeChecker
	QIColumns  []int
}

// NewEngine builds a demo engine over a freshly generated synthetic
// dataset with qiCount quasi-identifier columns each spanning a hierarchy
// of domain raw values, enforcing k-anonymity with the given k.
func NewEngine(rows, qiCount, domain, k int) *Engine {
	generalized, analyzed, static := GenerateDataset(rows, qiCount, domain)

	hierarchies := make([]datamgr.Hierarchy, qiCount)
	heights := make([]int, qiCount)
	weights := make([]metric.ColumnWeight, qiCount)
	qiColumns := make([]int, qiCount)
	qiNames := make([]string, qiCount)
	for c := 0; c < qiCount; c++ {
		h := NewLinearHierarchy(domain)
		hierarchies[c] = h
		heights[c] = h.Height()
		qiColumns[c] = c
		qiNames[c] = fmt.Sprintf("qi%d", c)
		weights[c] = metric.ColumnWeight{Name: qiNames[c], Weight: 1.0, Height: h.Height()}
	}

	manager := datamgr.NewMemManager(generalized, analyzed, static, hierarchies)
	def := definition.New(qiNames, nil)
	cfg := config.New([]config.PrivacyModel{KAnonymityModel{K: k}}, 0.2, k)
	met := metric.NewLossMetric(weights, 0.5)
	chk := checker.New(manager, def, met, cfg, qiColumns)
	space := lattice.NewMemSpace(heights)

	return &Engine{
		Space:      space,
		Manager:    manager,
		Definition: def,
		Config:     cfg,
		Metric:     met,
		Checker:    chk,
		QIColumns:  qiColumns,
	}
}

// Run exhaustively walks every node of the lattice, applying the checker to
// each and selecting the checked, anonymous node with the lowest
// information loss as the global optimum. This stands in for the external
// heuristic lattice-search collaborator; it is only tractable because demo
// lattices are small.
func (e *Engine) Run() (*result.AnonymizationResult, error) {
	start := time.Now()

	var best *lattice.Transformation
	var bestLoss models.Score

	total := 1
	for _, h := range e.Space.Heights() {
		total *= h
	}

	for id := int64(0); id < int64(total); id++ {
		vector := e.Space.FromInternal(e.Space.IndexOf(id))
		node := e.Space.TransformationFor(vector)
		if _, err := e.Checker.Apply(node); err != nil {
			return nil, fmt.Errorf("demo: checking node %d: %w", id, err)
		}
		if node.HasProperty(lattice.PropertyAnonymous) {
			il := node.InformationLoss()
			if bestLoss == nil || il.CompareTo(bestLoss) < 0 {
				bestLoss = il
				best = node
			}
		}
	}

	if best != nil {
		e.Space.SetGlobalOptimum(best.ID())
	}

	return result.New(e.Space, e.Checker, e.Metric, e.Config, e.Definition, e.Manager, e.QIColumns, time.Since(start)), nil
}
