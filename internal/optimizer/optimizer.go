// Package optimizer implements the LocalRecodingOptimizer (C7): given a
// checked lattice node whose output buffer still has suppressed outlier
// rows, it re-anonymizes just those rows in isolation — a fresh,
// independent inner run over a narrowed DataManager projection — and
// splices any improvement back into the registry's buffer in place,
// without moving the search to a different lattice node.
//
// The inner-run shape runs a second, independent evaluation over a
// narrowed input and diffs it against the primary result before deciding
// whether to accept it. Here the "second run" is the outlier-only subset
// re-anonymization, and "accept" means splicing its rows back into the
// locked buffer.
package optimizer

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/rawblock/anonyengine/internal/checker"
	"github.com/rawblock/anonyengine/internal/config"
	"github.com/rawblock/anonyengine/internal/datamgr"
	"github.com/rawblock/anonyengine/internal/definition"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/metric"
	"github.com/rawblock/anonyengine/internal/output"
	"github.com/rawblock/anonyengine/internal/registry"
	"github.com/rawblock/anonyengine/pkg/models"
)

// ProgressListener is notified after each optimization round: round is the
// 1-based round number, adaptedThisRound/totalAdapted are row counts, and
// progress is a monotone value in [0,1] that reaches exactly 1.0 on the
// round that ends the run.
type ProgressListener func(round int, adaptedThisRound, totalAdapted int, progress float64)

// Collaborators bundles the external dependencies OptimizeFast needs beyond
// the node and registry: the checker/manager/definition/metric the original
// run used, and which generalized-matrix columns are quasi-identifiers.
type Collaborators struct {
	Checker    checker.NodeChecker
	Manager    datamgr.DataManager
	Definition *definition.DataDefinition
	Metric     metric.Metric
	Config     *config.AnonymizationConfig
	QIColumns  []int
}

// IsOptimizable reports whether handle is a plausible local-recoding
// target, evaluating all four preconditions literally:
//
//  1. handle must be a real output handle (non-nil).
//  2. provenance: handle's buffer must still be derived from manager's
//     current row matrix — approximated here by row-count identity, since
//     this engine does not carry a finer-grained buffer lineage tag beyond
//     Refine()'s optimized flag.
//  3. every declared privacy model must support local recoding; a model
//     that doesn't makes any per-row repair meaningless.
//  4. the outlier count must be nonzero, and — preserving the documented
//     inequality direction rather than "fixing" it — rejected outright if
//     it falls below the configured minimal group size.
func IsOptimizable(handle *output.DataHandleOutput, manager datamgr.DataManager, cfg *config.AnonymizationConfig) bool {
	if handle == nil || manager == nil || cfg == nil {
		return false
	}
	buf := handle.Buffer()
	if buf.RowCount() != len(manager.GeneralizedMatrix()) {
		return false
	}
	for _, pm := range cfg.PrivacyModels() {
		if !pm.SupportsLocalRecoding() {
			return false
		}
	}

	outliers := 0
	for r := 0; r < buf.RowCount(); r++ {
		if buf.IsOutlier(r) {
			outliers++
		}
	}
	if outliers == 0 {
		return false
	}
	if minGroup := cfg.MinimalGroupSize(); minGroup > 0 && outliers < minGroup {
		return false
	}
	return true
}

// Optimize is OptimizeFast with records=1.0 and the collaborators' ambient
// gsFactor (attempt to repair every currently-suppressed row in one pass,
// without overriding the configured generalization/suppression weight).
func Optimize(node *lattice.Transformation, reg *registry.ResultRegistry, col Collaborators) (int, error) {
	if col.Config == nil {
		return 0, ErrInvalidArgument
	}
	return OptimizeFast(node, reg, col, 1.0, col.Config.GSFactor())
}

// OptimizeFast runs one local-recoding pass against node's currently
// registered output. records is the fraction of the dataset the caller
// wants this pass to be willing to adapt; it is translated into a
// per-subset suppression budget per the records-clamp below. gsFactor
// overrides the configured generalization/suppression weight for this pass
// only (NaN leaves the ambient configuration's weight in place). It returns
// the number of rows whose outlier flag was cleared, or 0 (not an error)
// if node is not optimizable or no solution improved on the current
// buffer. A locked registry, nil arguments, or a collaborator failure are
// reported as real errors; any error encountered after Lock succeeds
// triggers a Rollback and is wrapped as ErrRollbackRequired.
//
// Protocol:
//  1. validate arguments
//  2. fetch the current output and reject non-optimizable nodes (0, nil)
//  3. lock the registry for node
//  4. collect the buffer's outlier rows into a RowSet
//  5. clamp the subset's suppression budget from records and |rowSet|
//  6. project the DataManager/DataDefinition onto the outlier rows
//  7. re-anonymize the subset in isolation with a fresh inner checker
//  8. splice any newly-non-outlier subset rows back into the buffer,
//     replace the registry's handle, unlock, and return the count adapted
func OptimizeFast(node *lattice.Transformation, reg *registry.ResultRegistry, col Collaborators, records, gsFactor float64) (adapted int, err error) {
	if node == nil || reg == nil || col.Checker == nil || col.Manager == nil || col.Config == nil {
		return 0, ErrInvalidArgument
	}

	handle, outErr := reg.Output(node, col.Checker, false)
	if outErr != nil {
		if outErr == registry.ErrBufferLocked {
			return 0, ErrBufferLocked
		}
		return 0, fmt.Errorf("%w: %v", ErrInternal, outErr)
	}
	if !IsOptimizable(handle, col.Manager, col.Config) {
		return 0, nil
	}

	if lockErr := reg.Lock(node); lockErr != nil {
		if lockErr == registry.ErrBufferLocked {
			return 0, ErrBufferLocked
		}
		return 0, fmt.Errorf("%w: %v", ErrInternal, lockErr)
	}

	rolledBack := false
	defer func() {
		if r := recover(); r != nil {
			_ = reg.Rollback()
			err = fmt.Errorf("%w: panic: %v", ErrRollbackRequired, r)
			return
		}
		if err != nil && !rolledBack {
			_ = reg.Rollback()
			err = fmt.Errorf("%w: %v", ErrRollbackRequired, err)
		}
	}()

	buffer := handle.Buffer()

	rowSet := models.NewRowSet(buffer.RowCount())
	for r := 0; r < buffer.RowCount(); r++ {
		if buffer.IsOutlier(r) {
			rowSet.Add(r)
		}
	}
	// rowSet is guaranteed non-empty: IsOptimizable already rejected a
	// zero-outlier handle above, before the lock was ever taken.

	subsetMaxOutliers := clampMaxOutliers(records, buffer.RowCount(), rowSet.Len())
	subsetCfg := col.Config.SubsetFor(rowSet.Len(), gsFactor)
	subsetCfg.SetMaxOutliers(subsetMaxOutliers)

	subManager, projErr := col.Manager.SubsetInstance(rowSet)
	if projErr != nil {
		return 0, fmt.Errorf("%w: subset projection: %v", ErrInternal, projErr)
	}
	subDef := col.Definition.Clone()

	innerChecker := checker.New(subManager, subDef, col.Metric, subsetCfg, col.QIColumns)
	innerResult, applyErr := innerChecker.ApplyWithDictionary(node, nil)
	if applyErr != nil {
		return 0, fmt.Errorf("%w: inner re-check: %v", ErrInternal, applyErr)
	}

	rows := rowSet.Rows()
	improvedRows := 0
	for i := range rows {
		if !models.IsOutlierRow(innerResult.Generalized, i) {
			improvedRows++
		}
	}
	if improvedRows == 0 {
		// No solution: the outlier population is not salvageable at this
		// node's generalization level even in isolation.
		if unlockErr := reg.Unlock(); unlockErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrInternal, unlockErr)
		}
		return 0, nil
	}

	newGeneralized := make([][]int32, len(buffer.Generalized))
	copy(newGeneralized, buffer.Generalized)
	var newMicro [][]float64
	if buffer.Microaggregated != nil {
		newMicro = make([][]float64, len(buffer.Microaggregated))
		copy(newMicro, buffer.Microaggregated)
	}
	for i, r := range rows {
		newGeneralized[r] = innerResult.Generalized[i]
		if newMicro != nil && innerResult.Microaggregated != nil {
			newMicro[r] = innerResult.Microaggregated[i]
		}
	}

	newBuffer := output.NewOutputBuffer(newGeneralized, newMicro)
	newHandle := handle.Refine(newBuffer)

	if replaceErr := reg.Replace(newHandle); replaceErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternal, replaceErr)
	}
	if unlockErr := reg.Unlock(); unlockErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternal, unlockErr)
	}

	logPartitionDrift(buffer.Generalized, newGeneralized)

	return improvedRows, nil
}

// logPartitionDrift logs how much a splice changed the buffer's
// equivalence-class structure, using the adjusted Rand index between the
// pre- and post-splice row partitions. Purely observational — it never
// influences whether a splice is accepted.
func logPartitionDrift(before, after [][]int32) {
	comparator := metric.NewPartitionComparator()
	ari := comparator.AdjustedRandIndex(classesOf(before), classesOf(after))
	log.Printf("optimizer: splice applied, equivalence-class ARI=%.4f", ari)
}

// classesOf groups row indices by their generalized quasi-identifier tuple,
// masking off the outlier bit on column 0 the same way checker.groupByTuple
// does, so drift logging sees the same class boundaries the checker scored.
func classesOf(generalized [][]int32) [][]int {
	index := make(map[string]int)
	var classes [][]int
	for r, row := range generalized {
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
		key := b.String()
		ci, ok := index[key]
		if !ok {
			ci = len(classes)
			index[key] = ci
			classes = append(classes, nil)
		}
		classes[ci] = append(classes[ci], r)
	}
	return classes
}

// clampMaxOutliers derives the subset suppression budget from the
// caller-requested records fraction: the number of rows the caller is
// willing to adapt across the whole dataset (records * totalRows),
// expressed as a fraction of the narrower outlier subset, then inverted
// into a suppression budget (the fraction of the subset still allowed to
// remain suppressed) and clamped to [0,1].
func clampMaxOutliers(records float64, totalRows, rowSetLen int) float64 {
	if rowSetLen == 0 {
		return 0
	}
	absolute := records * float64(totalRows)
	relative := absolute / float64(rowSetLen)
	if relative > 1 {
		relative = 1
	}
	if relative < 0 {
		relative = 0
	}
	return 1 - relative
}

// countOutliers returns the number of outlier-flagged rows in buf.
func countOutliers(buf *output.OutputBuffer) int {
	n := 0
	for r := 0; r < buf.RowCount(); r++ {
		if buf.IsOutlier(r) {
			n++
		}
	}
	return n
}

// currentHandle fetches node's registered output, translating a locked
// registry into ErrBufferLocked rather than the registry package's own
// sentinel.
func currentHandle(node *lattice.Transformation, reg *registry.ResultRegistry, nc checker.NodeChecker) (*output.DataHandleOutput, error) {
	h, err := reg.Output(node, nc, false)
	if err != nil {
		if err == registry.ErrBufferLocked {
			return nil, ErrBufferLocked
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return h, nil
}

// OptimizeIterative repeats OptimizeFast against node, escalating gsFactor
// by adaptionFactor whenever a round makes no progress, until isOptimizable
// goes false, maxIterations is reached, or a round neither improves nor can
// be escalated further. gsFactor is the starting generalization/suppression
// weight; adaptionFactor <= 0 disables escalation entirely (a round that
// adapts nothing then ends the run immediately). It returns the total rows
// adapted across all iterations; maxIterations bounds the round count
// regardless of the dataset, guaranteeing termination (P8).
func OptimizeIterative(node *lattice.Transformation, reg *registry.ResultRegistry, col Collaborators, gsFactor float64, maxIterations int, adaptionFactor float64, listener ProgressListener) (int, error) {
	if node == nil || reg == nil || col.Checker == nil || col.Manager == nil || col.Config == nil || maxIterations <= 0 {
		return 0, ErrInvalidArgument
	}

	handle, err := currentHandle(node, reg, col.Checker)
	if err != nil {
		return 0, err
	}
	goal := countOutliers(handle.Buffer())
	if goal == 0 {
		if listener != nil {
			listener(0, 0, 0, 1.0)
		}
		return 0, nil
	}

	gs := gsFactor
	total := 0
	cur := math.MaxInt64 // +infinity sentinel: always satisfies cur > 0
	iter := 0

	for {
		h, err := currentHandle(node, reg, col.Checker)
		if err != nil {
			return total, err
		}
		if !IsOptimizable(h, col.Manager, col.Config) || iter >= maxIterations || cur <= 0 {
			break
		}

		adapted, optErr := OptimizeFast(node, reg, col, 1.0, gs)
		if optErr != nil {
			return total, optErr
		}
		cur = adapted
		total += adapted

		if adapted == 0 && adaptionFactor > 0 {
			gs += adaptionFactor
			if gs <= 1.0 {
				cur = math.MaxInt64 // force another attempt at the new gsFactor
			}
		}
		iter++

		if listener != nil {
			progress := float64(total) / float64(goal)
			if p := float64(iter) / float64(maxIterations); p > progress {
				progress = p
			}
			if progress > 1 {
				progress = 1
			}
			listener(iter, adapted, total, progress)
		}
	}
	if listener != nil {
		listener(iter, 0, total, 1.0)
	}
	return total, nil
}

// OptimizeIterativeFast repeats OptimizeFast with a fixed records/gsFactor
// budget, no iteration cap and no gsFactor adaption: it loops until
// isOptimizable goes false or a round adapts zero rows. listener is told,
// after each round, the fraction of the [0,1] progress axis that round's
// records budget accounts for, accumulated band by band
// (maxProgress = minProgress + records).
func OptimizeIterativeFast(node *lattice.Transformation, reg *registry.ResultRegistry, col Collaborators, records, gsFactor float64, listener ProgressListener) (int, error) {
	if node == nil || reg == nil || col.Checker == nil || col.Manager == nil || col.Config == nil {
		return 0, ErrInvalidArgument
	}

	total := 0
	round := 0
	minProgress := 0.0

	for {
		h, err := currentHandle(node, reg, col.Checker)
		if err != nil {
			return total, err
		}
		if !IsOptimizable(h, col.Manager, col.Config) {
			break
		}

		maxProgress := minProgress + records
		if maxProgress > 1 {
			maxProgress = 1
		}

		adapted, optErr := OptimizeFast(node, reg, col, records, gsFactor)
		if optErr != nil {
			return total, optErr
		}
		round++
		total += adapted
		if listener != nil {
			listener(round, adapted, total, maxProgress)
		}
		minProgress = maxProgress
		if adapted == 0 {
			break
		}
	}
	if listener != nil {
		listener(round, 0, total, 1.0)
	}
	return total, nil
}
