package lattice

import (
	"sync"

	"github.com/rawblock/anonyengine/pkg/models"
)

// Transformation is the identity of one point in the generalization lattice:
// the user-facing generalization vector, its internal coordinate, the
// derived id, the level, and the mutable score/property cells a NodeChecker
// and lattice search fill in as the node is explored.
//
// Invariant T1: id == space.IDOf(index) and index == space.ToInternal(generalization)
// are fixed at construction and never change.
//
// Invariant T2: checked implies informationLoss is set and exactly one of
// anonymous/not-anonymous is set.
//
// Invariant T3: once a node has a Direction-Up property, every successor
// logically carries it; Direction-Down, every predecessor does. Every
// write propagates at once, transitively, through the solution space's
// per-id property cells; a node materialized later starts from its cell.
type Transformation struct {
	generalization models.GeneralizationVector
	index          []int
	id             int64
	level          int

	space SolutionSpace

	mu              sync.Mutex
	properties      PropertySet
	informationLoss models.Score
	lowerBound      models.Score
}

// NewTransformation constructs the immutable identity of a lattice point.
// space is retained so propagateToNeighbors can reach sibling nodes by id
// without allocating a Transformation per neighbor.
func NewTransformation(space SolutionSpace, generalization models.GeneralizationVector) *Transformation {
	index := space.ToInternal(generalization)
	return &Transformation{
		generalization: generalization.Clone(),
		index:          index,
		id:             space.IDOf(index),
		level:          generalization.Level(),
		space:          space,
	}
}

// Generalization returns the user-facing vector.
func (t *Transformation) Generalization() models.GeneralizationVector { return t.generalization }

// Index returns the internal coordinate.
func (t *Transformation) Index() []int { return t.index }

// ID returns the monotone id unique within the solution space.
func (t *Transformation) ID() int64 { return t.id }

// Level returns the sum of the generalization vector's components.
func (t *Transformation) Level() int { return t.level }

// Space returns the solution space this node belongs to, so a collaborator
// holding only a node (e.g. the registry's Output) can reach space-level
// operations like EstimateBounds without needing its own reference threaded
// through a constructor.
func (t *Transformation) Space() SolutionSpace { return t.space }

// HasProperty reports whether p is set on this node.
func (t *Transformation) HasProperty(p Property) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.properties.Has(p)
}

// SetProperty sets p on this node, writes it into the solution space's cell
// for this id, and propagates it to neighbors per p's Direction. Once set,
// a property is never unset (monotone).
func (t *Transformation) SetProperty(p Property) {
	t.mu.Lock()
	already := t.properties.Has(p)
	t.properties = t.properties.With(p)
	t.mu.Unlock()

	if !already {
		t.space.SetProperty(t.id, p)
	}
}

// propagateToNeighbors writes p into each UP successor's or DOWN
// predecessor's property bitmap directly through the solution space,
// bypassing per-neighbor Transformation construction. The neighbor id list
// is snapshotted before any write, so a lattice re-index triggered by one
// of those writes cannot invalidate an in-flight iteration: every neighbor
// is read before any of them is mutated.
func (t *Transformation) propagateToNeighbors(p Property) {
	var neighborIDs []int64
	switch p.Direction() {
	case DirectionUp:
		neighborIDs = append(neighborIDs, t.space.Successors(t.id)...)
	case DirectionDown:
		neighborIDs = append(neighborIDs, t.space.Predecessors(t.id)...)
	default:
		return
	}

	for _, id := range neighborIDs {
		t.space.SetProperty(id, p)
	}
}

// InformationLoss returns the cached information-loss score, or nil if
// unset.
func (t *Transformation) InformationLoss() models.Score {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.informationLoss
}

// LowerBound returns the cached lower-bound score, or nil if unset.
func (t *Transformation) LowerBound() models.Score {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lowerBound
}

// HighestScore and LowestScore are equal to InformationLoss once the node
// has been fully checked — this core treats a checked node's score as a
// point value, not a range; the lattice search (out of scope) is the
// collaborator that models ranges for heuristic pruning before a node is
// fully checked.
func (t *Transformation) HighestScore() models.Score { return t.InformationLoss() }
func (t *Transformation) LowestScore() models.Score  { return t.InformationLoss() }

// SetChecked records the outcome of a full NodeChecker pass: the
// information-loss and lower-bound scores, and marks the node Checked. A
// second call with equal scores is a legal idempotent write (re-checking a
// node must never observe two distinct values for the same score cell —
// invariant T2/P3); a second call with a different non-null value panics,
// since that would violate score monotonicity.
func (t *Transformation) SetChecked(informationLoss, lowerBound models.Score) {
	t.mu.Lock()
	if t.informationLoss != nil && informationLoss != nil && t.informationLoss.CompareTo(informationLoss) != 0 {
		t.mu.Unlock()
		panic("lattice: informationLoss observed to change from one non-null value to a different one")
	}
	t.informationLoss = informationLoss
	t.lowerBound = lowerBound
	t.properties = t.properties.With(PropertyChecked)
	t.mu.Unlock()

	t.space.SetInformationLoss(t.id, informationLoss)
	t.space.SetLowerBound(t.id, lowerBound)
	t.space.SetProperty(t.id, PropertyChecked)
}
