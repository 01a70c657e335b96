// Package output implements the OutputBuffer/DataHandleOutput
// collaborators: the generalized + microaggregated row buffer a
// NodeChecker produces, and the read-only handle client code walks to
// pull rows back out, including which rows were suppressed as outliers.
// The handle's "optimized" provenance flag and its identity-based
// input-buffer linkage tag a result with which run produced it, rather
// than re-deriving that fact from the data.
package output

import "github.com/rawblock/anonyengine/pkg/models"

// OutputBuffer is the raw generalized/microaggregated matrix pair produced
// by applying one Transformation, plus the outlier mask folded into the
// generalized rows' leading column (models.OutlierMask).
//
// Invariant O1: len(Generalized) == len(Microaggregated) whenever
// Microaggregated is non-nil (one row per source row, dense).
// Invariant O2: an outlier-flagged row's generalized values are still the
// fully-generalized values for its class, never zeroed or redacted — the
// flag is metadata, not a destructive edit.
type OutputBuffer struct {
	Generalized     [][]int32
	Microaggregated [][]float64
}

// NewOutputBuffer wraps already-computed matrices. Panics if O1 is violated,
// since that would indicate a NodeChecker bug, not a caller error.
func NewOutputBuffer(generalized [][]int32, microaggregated [][]float64) *OutputBuffer {
	if microaggregated != nil && len(microaggregated) != len(generalized) {
		panic("output: generalized/microaggregated row count mismatch")
	}
	return &OutputBuffer{Generalized: generalized, Microaggregated: microaggregated}
}

func (b *OutputBuffer) RowCount() int { return len(b.Generalized) }

// IsOutlier reports whether row r was suppressed into an equivalence class
// that failed a privacy model local recoding could not repair.
func (b *OutputBuffer) IsOutlier(r int) bool {
	return models.IsOutlierRow(b.Generalized, r)
}

// DataHandleOutput is the read-only façade over an OutputBuffer a caller of
// AnonymizationResult.Output receives. It also carries provenance: whether
// the buffer it wraps came from the original anonymization run or from a
// later local-recoding optimization pass, and which input buffer (by
// identity) it was produced from.
type DataHandleOutput struct {
	buffer       *OutputBuffer
	optimized    bool
	inputHandle  *DataHandleOutput
}

// NewDataHandleOutput wraps buffer as a non-optimized (original-run) handle.
func NewDataHandleOutput(buffer *OutputBuffer) *DataHandleOutput {
	return &DataHandleOutput{buffer: buffer}
}

// Refine returns a new handle over buffer, tagged as produced by optimizing
// h (h becomes the InputBuffer of the result).
func (h *DataHandleOutput) Refine(buffer *OutputBuffer) *DataHandleOutput {
	return &DataHandleOutput{buffer: buffer, optimized: true, inputHandle: h}
}

func (h *DataHandleOutput) Buffer() *OutputBuffer { return h.buffer }

// Optimized reports whether this handle's buffer was produced by local
// recoding rather than a direct lattice-node check.
func (h *DataHandleOutput) Optimized() bool { return h.optimized }

// InputBuffer returns the handle this one was refined from, or nil if this
// handle is itself an original (non-optimized) run's output.
func (h *DataHandleOutput) InputBuffer() *DataHandleOutput { return h.inputHandle }

// IsInputBufferOf reports whether other was produced (directly or
// transitively) by refining h, by walking other's InputBuffer chain and
// comparing handles by identity.
func (h *DataHandleOutput) IsInputBufferOf(other *DataHandleOutput) bool {
	for cur := other; cur != nil; cur = cur.inputHandle {
		if cur == h {
			return true
		}
	}
	return false
}

func (h *DataHandleOutput) RowCount() int { return h.buffer.RowCount() }

func (h *DataHandleOutput) IsOutlier(r int) bool { return h.buffer.IsOutlier(r) }

// Row returns the generalized quasi-identifier tuple for row r, with the
// outlier bit masked off the leading column.
func (h *DataHandleOutput) Row(r int) []int32 {
	row := h.buffer.Generalized[r]
	out := append([]int32(nil), row...)
	if len(out) > 0 {
		out[0] &^= models.OutlierMask
	}
	return out
}

// Microaggregated returns the microaggregated numeric values for row r, or
// nil if this buffer carries no microaggregation.
func (h *DataHandleOutput) Microaggregated(r int) []float64 {
	if h.buffer.Microaggregated == nil {
		return nil
	}
	return h.buffer.Microaggregated[r]
}
