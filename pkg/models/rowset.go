// Package models holds the value types shared across the anonymization
// engine's packages: row selections, generalization vectors, and the
// scored/classified bundle a node checker produces.
package models

import (
	"github.com/bits-and-blooms/bitset"
)

// RowSet is a dense bitset over input-row indices, with a cached
// population count so repeated Len() calls don't rescan the set.
//
// Local recoding projects the original dataset onto the rows selected by a
// RowSet; the manager's subset instance re-indexes those rows densely,
// preserving ascending order of the original indices — the merge loop in
// the optimizer relies on that ordering.
type RowSet struct {
	bits  *bitset.BitSet
	count int
}

// NewRowSet returns an empty RowSet sized to hold indices in [0, totalRows).
func NewRowSet(totalRows int) *RowSet {
	if totalRows < 0 {
		totalRows = 0
	}
	return &RowSet{bits: bitset.New(uint(totalRows))}
}

// Add includes row r in the set. Idempotent.
func (rs *RowSet) Add(r int) {
	if rs.bits.Test(uint(r)) {
		return
	}
	rs.bits.Set(uint(r))
	rs.count++
}

// Contains reports whether row r is selected.
func (rs *RowSet) Contains(r int) bool {
	return rs.bits.Test(uint(r))
}

// Len returns the population count (number of selected rows).
func (rs *RowSet) Len() int {
	return rs.count
}

// Rows returns the selected row indices in ascending order. Ascending order
// is load-bearing: the optimizer's merge walk and the manager's subset
// re-indexing both depend on it.
func (rs *RowSet) Rows() []int {
	out := make([]int, 0, rs.count)
	for i, e := rs.bits.NextSet(0); e; i, e = rs.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// DenseIndexOf returns the position of row r within Rows() (its index after
// dense re-indexing), or -1 if r is not selected. O(popcount up to r).
func (rs *RowSet) DenseIndexOf(r int) int {
	if !rs.bits.Test(uint(r)) {
		return -1
	}
	idx := 0
	for i, e := rs.bits.NextSet(0); e && i < uint(r); i, e = rs.bits.NextSet(i + 1) {
		idx++
	}
	return idx
}
