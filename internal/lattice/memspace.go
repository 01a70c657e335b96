package lattice

import (
	"sync"

	"github.com/rawblock/anonyengine/pkg/models"
)

// MemSpace is a reference, in-memory SolutionSpace. The internal coordinate
// system is the identity mapping of the generalization vector (ToInternal
// is a no-op copy); ids are derived by mixed-radix encoding the index
// against each column's height, so the id is a dense, monotone integer
// ordering of the lattice by index.
type MemSpace struct {
	heights []int // number of hierarchy levels per quasi-identifier column

	mu     sync.Mutex
	nodes  map[int64]*Transformation
	props  map[int64]PropertySet
	ilCell map[int64]models.Score
	lbCell map[int64]models.Score

	optimum   int64
	haveOpt   bool
	estimates int // counts EstimateBounds calls, useful for tests
}

// NewMemSpace builds a solution space over a lattice whose column i has
// heights[i] hierarchy levels (indices 0..heights[i]-1).
func NewMemSpace(heights []int) *MemSpace {
	return &MemSpace{
		heights: append([]int(nil), heights...),
		nodes:   make(map[int64]*Transformation),
		props:   make(map[int64]PropertySet),
		ilCell:  make(map[int64]models.Score),
		lbCell:  make(map[int64]models.Score),
	}
}

// Heights returns the per-column hierarchy height vector the space was
// constructed with.
func (s *MemSpace) Heights() []int {
	return append([]int(nil), s.heights...)
}

// IndexOf decodes id back into its mixed-radix index vector. Exported so
// callers that need to enumerate the lattice (e.g. an exhaustive demo
// search) can walk ids without duplicating the mixed-radix decode.
func (s *MemSpace) IndexOf(id int64) []int {
	return s.indexOf(id)
}

func (s *MemSpace) ToInternal(vector models.GeneralizationVector) []int {
	return append([]int(nil), vector...)
}

func (s *MemSpace) FromInternal(index []int) models.GeneralizationVector {
	return models.GeneralizationVector(append([]int(nil), index...))
}

func (s *MemSpace) IDOf(index []int) int64 {
	var id int64
	for i, v := range index {
		id = id*int64(s.heights[i]) + int64(v)
	}
	return id
}

func (s *MemSpace) TransformationFor(vector models.GeneralizationVector) *Transformation {
	index := s.ToInternal(vector)
	id := s.IDOf(index)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.nodes[id]; ok {
		return t
	}
	t := &Transformation{
		generalization: vector.Clone(),
		index:          index,
		id:             id,
		level:          vector.Level(),
		space:          s,
		properties:     s.props[id],
	}
	s.nodes[id] = t
	return t
}

func (s *MemSpace) TransformationByID(id int64) (*Transformation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.nodes[id]
	return t, ok
}

// Successors returns the ids of nodes reachable by incrementing exactly one
// column by one level, within bounds.
func (s *MemSpace) Successors(id int64) []int64 {
	index := s.indexOf(id)
	var out []int64
	for i := range index {
		if index[i]+1 < s.heights[i] {
			next := append([]int(nil), index...)
			next[i]++
			out = append(out, s.IDOf(next))
		}
	}
	return out
}

// Predecessors returns the ids of nodes reachable by decrementing exactly
// one column by one level, within bounds.
func (s *MemSpace) Predecessors(id int64) []int64 {
	index := s.indexOf(id)
	var out []int64
	for i := range index {
		if index[i]-1 >= 0 {
			prev := append([]int(nil), index...)
			prev[i]--
			out = append(out, s.IDOf(prev))
		}
	}
	return out
}

// indexOf decodes an id back into its mixed-radix index vector.
func (s *MemSpace) indexOf(id int64) []int {
	index := make([]int, len(s.heights))
	for i := len(s.heights) - 1; i >= 0; i-- {
		h := int64(s.heights[i])
		index[i] = int(id % h)
		id /= h
	}
	return index
}

func (s *MemSpace) SetProperty(id int64, p Property) {
	s.mu.Lock()
	already := s.props[id].Has(p)
	s.props[id] = s.props[id].With(p)
	t := s.nodes[id]
	s.mu.Unlock()

	if already {
		return
	}
	// Keep a live Transformation's own bitmap (if one has been materialized
	// for this id) consistent with the space-level cell, and continue the
	// eager propagation chain.
	if t != nil {
		t.mu.Lock()
		t.properties = t.properties.With(p)
		t.mu.Unlock()
	}
	tmp := &Transformation{id: id, space: s}
	tmp.propagateToNeighbors(p)
}

func (s *MemSpace) HasProperty(id int64, p Property) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props[id].Has(p)
}

func (s *MemSpace) InformationLoss(id int64) models.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ilCell[id]
}

func (s *MemSpace) SetInformationLoss(id int64, sc models.Score) {
	s.mu.Lock()
	s.ilCell[id] = sc
	s.mu.Unlock()
}

func (s *MemSpace) LowerBound(id int64) models.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lbCell[id]
}

func (s *MemSpace) SetLowerBound(id int64, sc models.Score) {
	s.mu.Lock()
	s.lbCell[id] = sc
	s.mu.Unlock()
}

// EstimateBounds is a no-op counter in this reference implementation — the
// real bound-estimation algorithm lives in the external lattice search
// collaborator.
func (s *MemSpace) EstimateBounds() {
	s.mu.Lock()
	s.estimates++
	s.mu.Unlock()
}

// NodeSnapshot is one node's persisted property/score cells, the unit
// Snapshot/Restore round-trip through a serialized envelope.
type NodeSnapshot struct {
	Properties      uint32
	InformationLoss models.Score
	LowerBound      models.Score
}

// Snapshot returns every node id this space has materialized, keyed to its
// property bitmask and score cells, for persisting a finished run.
func (s *MemSpace) Snapshot() map[int64]NodeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]NodeSnapshot, len(s.nodes))
	for id := range s.nodes {
		out[id] = NodeSnapshot{
			Properties:      uint32(s.props[id]),
			InformationLoss: s.ilCell[id],
			LowerBound:      s.lbCell[id],
		}
	}
	return out
}

// Restore writes a previously captured NodeSnapshot's cells directly into
// id's property/score maps, bypassing propagateToNeighbors — a persisted
// snapshot already reflects a fully propagated run, so re-propagating on
// load would be redundant work.
func (s *MemSpace) Restore(id int64, snap NodeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[id] = PropertySet(snap.Properties)
	s.ilCell[id] = snap.InformationLoss
	s.lbCell[id] = snap.LowerBound
}

// SetGlobalOptimum lets the owning search (or a test) record the winning
// node once the search concludes.
func (s *MemSpace) SetGlobalOptimum(id int64) {
	s.mu.Lock()
	s.optimum = id
	s.haveOpt = true
	s.mu.Unlock()
}

func (s *MemSpace) GlobalOptimum() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optimum, s.haveOpt
}
