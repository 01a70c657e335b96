// Package datamgr owns the row matrices a NodeChecker transforms: the
// quasi-identifier codes to be generalized, the numeric attributes to be
// microaggregated, and the untouched static columns — plus the hierarchies
// used to generalize and the subset-projection used by local recoding.
package datamgr

import "github.com/rawblock/anonyengine/pkg/models"

// Hierarchy maps a quasi-identifier column's level-0 (raw) value index to a
// generalized code at a given level. Height is the number of levels the
// column's lattice dimension spans.
type Hierarchy interface {
	Height() int
	Generalize(level int, rawValue int) int32
}

// DataManager is the external collaborator owning the three row matrices
// and the hierarchies, plus subset projection for local recoding (§3, §6).
type DataManager interface {
	GeneralizedMatrix() [][]int
	AnalyzedMatrix() [][]float64
	StaticMatrix() [][]string
	Hierarchies() []Hierarchy

	// SubsetInstance returns a DataManager over exactly the rows rowSet
	// selects, re-indexed densely in ascending order of the original row
	// index. Ascending order is load-bearing — the optimizer's merge walk
	// depends on it.
	SubsetInstance(rowSet *models.RowSet) (DataManager, error)
}

// MemManager is a reference, in-memory DataManager.
type MemManager struct {
	generalized [][]int
	analyzed    [][]float64
	static      [][]string
	hierarchies []Hierarchy
}

// NewMemManager builds a manager over already-loaded row matrices. Loading
// from CSV/IO is left to the caller, who is responsible for populating
// these matrices (see internal/demo for a synthetic example).
func NewMemManager(generalized [][]int, analyzed [][]float64, static [][]string, hierarchies []Hierarchy) *MemManager {
	return &MemManager{
		generalized: generalized,
		analyzed:    analyzed,
		static:      static,
		hierarchies: hierarchies,
	}
}

func (m *MemManager) GeneralizedMatrix() [][]int      { return m.generalized }
func (m *MemManager) AnalyzedMatrix() [][]float64     { return m.analyzed }
func (m *MemManager) StaticMatrix() [][]string        { return m.static }
func (m *MemManager) Hierarchies() []Hierarchy        { return m.hierarchies }

// SubsetInstance projects onto rowSet, preserving ascending row order.
func (m *MemManager) SubsetInstance(rowSet *models.RowSet) (DataManager, error) {
	rows := rowSet.Rows()

	sub := &MemManager{hierarchies: m.hierarchies}
	if m.generalized != nil {
		sub.generalized = make([][]int, len(rows))
		for i, r := range rows {
			sub.generalized[i] = append([]int(nil), m.generalized[r]...)
		}
	}
	if m.analyzed != nil {
		sub.analyzed = make([][]float64, len(rows))
		for i, r := range rows {
			sub.analyzed[i] = append([]float64(nil), m.analyzed[r]...)
		}
	}
	if m.static != nil {
		sub.static = make([][]string, len(rows))
		for i, r := range rows {
			sub.static[i] = append([]string(nil), m.static[r]...)
		}
	}
	return sub, nil
}
