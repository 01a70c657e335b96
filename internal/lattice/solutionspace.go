package lattice

import "github.com/rawblock/anonyengine/pkg/models"

// SolutionSpace is the bijection between user-facing generalization vectors
// and the lattice's internal coordinate system, plus the property/score
// registry keyed by transformation id (§4.1, §6).
//
// The core never materializes a neighbor's Transformation object just to
// flip a bit on it — propagateToNeighbors writes through SetProperty
// directly, keyed by id, bypassing per-neighbor allocation.
type SolutionSpace interface {
	// ToInternal converts a user-facing generalization vector to the
	// lattice's internal coordinate system.
	ToInternal(vector models.GeneralizationVector) []int
	// FromInternal is the inverse of ToInternal.
	FromInternal(index []int) models.GeneralizationVector

	// IDOf derives the monotone id for an internal index.
	IDOf(index []int) int64

	// TransformationFor resolves a user-facing vector to its Transformation,
	// constructing it on first access.
	TransformationFor(vector models.GeneralizationVector) *Transformation
	// TransformationByID resolves an id to its Transformation.
	TransformationByID(id int64) (*Transformation, bool)

	// Successors returns the ids of nodes immediately more general than id.
	Successors(id int64) []int64
	// Predecessors returns the ids of nodes immediately less general than id.
	Predecessors(id int64) []int64

	// SetProperty sets p on the node named by id without requiring the
	// caller to hold a *Transformation for it.
	SetProperty(id int64, p Property)
	// HasProperty reports whether id carries p.
	HasProperty(id int64, p Property) bool

	// InformationLoss/LowerBound/SetInformationLoss/SetLowerBound manage
	// the per-id score cells backing a Transformation's cached scores.
	InformationLoss(id int64) models.Score
	SetInformationLoss(id int64, s models.Score)
	LowerBound(id int64) models.Score
	SetLowerBound(id int64, s models.Score)

	// EstimateBounds re-estimates global information-loss bounds after a
	// node has just been checked. Out of scope in detail (owned by the
	// lattice search external collaborator) — the core only needs to be
	// able to signal "a node was just resolved".
	EstimateBounds()

	// GlobalOptimum returns the lattice's current optimum node id and
	// whether one exists (false once/if the search proved the problem
	// unsatisfiable).
	GlobalOptimum() (int64, bool)
}
