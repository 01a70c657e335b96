// Package result implements AnonymizationResult: the façade a client
// holds after a lattice search concludes, bundling the solution space, the
// winning node, and the collaborators (checker, registry, config,
// definition) needed to pull output buffers and run local recoding against
// it. Constructing one from a finished run versus from persisted state are
// kept as two distinct entry points: one separately builds a fresh result
// from live search output and rehydrates another from a stored snapshot,
// rather than funneling both through one constructor with a "loaded from
// disk" flag.
package result

import (
	"errors"
	"time"

	"github.com/rawblock/anonyengine/internal/checker"
	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/internal/optimizer"
	"github.com/rawblock/anonyengine/internal/output"
	"github.com/rawblock/anonyengine/internal/registry"
)

// ErrNoOptimum is returned by GlobalOptimum when the search this result
// came from never recorded a winner (e.g. a no-solution search, or state
// deserialized before a search completed).
var ErrNoOptimum = errors.New("result: no global optimum recorded")

// AnonymizationResult is the reference implementation.
type AnonymizationResult struct {
	space      lattice.SolutionSpace
	checker    checker.NodeChecker
	registry   *registry.ResultRegistry
	cfg        *config.AnonymizationConfig
	def        *definition.DataDefinition
	manager    datamgr.DataManager
	met        metric.Metric
	qiColumns  []int
	duration   time.Duration
}

// New builds a result for a finished search: space must already have its
// global optimum recorded (space.GlobalOptimum()), and checker/registry are
// the live collaborators subsequent Output/Optimize calls run against. This
// is the ordinary construction path — the lattice search itself is an
// external collaborator; by the time New is called, it has already
// walked the lattice to completion.
func New(space lattice.SolutionSpace, nc checker.NodeChecker, met metric.Metric, cfg *config.AnonymizationConfig, def *definition.DataDefinition, manager datamgr.DataManager, qiColumns []int, duration time.Duration) *AnonymizationResult {
	return &AnonymizationResult{
		space:     space,
		checker:   nc,
		registry:  registry.New(),
		cfg:       cfg,
		def:       def,
		manager:   manager,
		met:       met,
		qiColumns: append([]int(nil), qiColumns...),
		duration:  duration,
	}
}

// FromState rehydrates a result from a deserialized envelope: a solution
// space whose property/score cells were already restored by the caller
// (e.g. internal/db's JSON round-trip) and the optimumID it recorded. No
// re-checking happens here — a deserialized result trusts the persisted
// scores rather than recomputing them on load.
func FromState(space lattice.SolutionSpace, optimumID int64, haveOptimum bool, nc checker.NodeChecker, met metric.Metric, cfg *config.AnonymizationConfig, def *definition.DataDefinition, manager datamgr.DataManager, qiColumns []int, duration time.Duration) *AnonymizationResult {
	r := New(space, nc, met, cfg, def, manager, qiColumns, duration)
	if haveOptimum {
		if ms, ok := space.(*lattice.MemSpace); ok {
			ms.SetGlobalOptimum(optimumID)
		}
	}
	return r
}

// GlobalOptimum returns the transformation the search selected as its
// winner.
func (r *AnonymizationResult) GlobalOptimum() (*lattice.Transformation, error) {
	id, ok := r.space.GlobalOptimum()
	if !ok {
		return nil, ErrNoOptimum
	}
	t, ok := r.space.TransformationByID(id)
	if !ok {
		return nil, ErrNoOptimum
	}
	return t, nil
}

// IsAvailable reports whether a global optimum has been recorded.
func (r *AnonymizationResult) IsAvailable() bool {
	_, ok := r.space.GlobalOptimum()
	return ok
}

// Output returns node's output buffer, honoring the registry's lock
// protocol (fork=false): a different node's request fails with
// registry.ErrBufferLocked while another node's output is locked for
// optimization.
func (r *AnonymizationResult) Output(node *lattice.Transformation) (*output.DataHandleOutput, error) {
	return r.registry.Output(node, r.checker, false)
}

// OutputFork returns an independent output buffer for node, bypassing the
// registry cache. It fails with registry.ErrBufferLocked while the
// registry is locked.
func (r *AnonymizationResult) OutputFork(node *lattice.Transformation) (*output.DataHandleOutput, error) {
	return r.registry.Output(node, r.checker, true)
}

func (r *AnonymizationResult) collaborators() optimizer.Collaborators {
	return optimizer.Collaborators{
		Checker:    r.checker,
		Manager:    r.manager,
		Definition: r.def,
		Metric:     r.met,
		Config:     r.cfg,
		QIColumns:  r.qiColumns,
	}
}

// IsOptimizable reports whether node is a plausible local-recoding target,
// fetching its registered output to evaluate the precondition against.
func (r *AnonymizationResult) IsOptimizable(node *lattice.Transformation) bool {
	handle, err := r.registry.Output(node, r.checker, false)
	if err != nil {
		return false
	}
	return optimizer.IsOptimizable(handle, r.manager, r.cfg)
}

// Optimize runs one local-recoding pass against node's registered output,
// using the configured ambient gsFactor.
func (r *AnonymizationResult) Optimize(node *lattice.Transformation) (int, error) {
	return optimizer.Optimize(node, r.registry, r.collaborators())
}

// OptimizeFast runs one local-recoding pass with an explicit records budget
// and gsFactor override (NaN leaves the ambient configuration's weight in
// place).
func (r *AnonymizationResult) OptimizeFast(node *lattice.Transformation, records, gsFactor float64) (int, error) {
	return optimizer.OptimizeFast(node, r.registry, r.collaborators(), records, gsFactor)
}

// OptimizeIterative repeats Optimize, escalating gsFactor by adaptionFactor
// whenever a round makes no progress, up to maxIterations.
func (r *AnonymizationResult) OptimizeIterative(node *lattice.Transformation, gsFactor float64, maxIterations int, adaptionFactor float64, listener optimizer.ProgressListener) (int, error) {
	return optimizer.OptimizeIterative(node, r.registry, r.collaborators(), gsFactor, maxIterations, adaptionFactor, listener)
}

// OptimizeIterativeFast repeats OptimizeFast with a fixed records/gsFactor
// budget and no iteration cap, until a round adapts nothing.
func (r *AnonymizationResult) OptimizeIterativeFast(node *lattice.Transformation, records, gsFactor float64, listener optimizer.ProgressListener) (int, error) {
	return optimizer.OptimizeIterativeFast(node, r.registry, r.collaborators(), records, gsFactor, listener)
}

// Configuration returns the privacy configuration this result was produced
// under.
func (r *AnonymizationResult) Configuration() *config.AnonymizationConfig { return r.cfg }

// DataDefinition returns the dataset schema this result was produced over.
func (r *AnonymizationResult) DataDefinition() *definition.DataDefinition { return r.def }

// Lattice returns the solution space the search explored.
func (r *AnonymizationResult) Lattice() lattice.SolutionSpace { return r.space }

// DurationMillis returns how long the originating search took.
func (r *AnonymizationResult) DurationMillis() int64 { return r.duration.Milliseconds() }
