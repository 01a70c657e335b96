package lattice

// Direction classifies how a Property propagates across the lattice: a node
// that carries a Direction-Up property implies all of its successors
// logically carry it too; Direction-Down does the same for predecessors.
type Direction int

const (
	// DirectionNone properties do not propagate.
	DirectionNone Direction = iota
	// DirectionUp properties propagate to successors (more general nodes).
	DirectionUp
	// DirectionDown properties propagate to predecessors (less general nodes).
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Property is one of the monotone bits a Transformation carries. Once set
// on a node it is never unset (§4.1).
type Property uint32

const (
	PropertyAnonymous Property = 1 << iota
	PropertyNotAnonymous
	PropertyKAnonymous
	PropertyNotKAnonymous
	PropertyChecked
	PropertyForceSnapshot
	PropertyInsufficientUtility
	PropertySuccessorsPruned
	PropertyVisited
)

// allProperties lists every property in a fixed order, used by Has/String.
var allProperties = []Property{
	PropertyAnonymous, PropertyNotAnonymous, PropertyKAnonymous, PropertyNotKAnonymous,
	PropertyChecked, PropertyForceSnapshot, PropertyInsufficientUtility,
	PropertySuccessorsPruned, PropertyVisited,
}

var propertyNames = map[Property]string{
	PropertyAnonymous:           "anonymous",
	PropertyNotAnonymous:        "not-anonymous",
	PropertyKAnonymous:          "k-anonymous",
	PropertyNotKAnonymous:       "not-k-anonymous",
	PropertyChecked:             "checked",
	PropertyForceSnapshot:       "force-snapshot",
	PropertyInsufficientUtility: "insufficient-utility",
	PropertySuccessorsPruned:    "successors-pruned",
	PropertyVisited:             "visited",
}

// directions maps each property to the direction it propagates in. Anonymity
// and k-anonymity are monotone under generalization: once a node is
// anonymous, every more-general successor is anonymous too (UP); the
// converse non-anonymity is monotone under predecessors — every
// less-general predecessor of a non-anonymous node is itself non-anonymous
// (DOWN). Bookkeeping properties (checked, visited, pruned, force-snapshot,
// insufficient-utility) do not propagate.
var directions = map[Property]Direction{
	PropertyAnonymous:           DirectionUp,
	PropertyKAnonymous:          DirectionUp,
	PropertyNotAnonymous:        DirectionDown,
	PropertyNotKAnonymous:       DirectionDown,
	PropertyChecked:             DirectionNone,
	PropertyForceSnapshot:       DirectionNone,
	PropertyInsufficientUtility: DirectionNone,
	PropertySuccessorsPruned:    DirectionNone,
	PropertyVisited:             DirectionNone,
}

// Direction reports how p propagates.
func (p Property) Direction() Direction {
	return directions[p]
}

// String renders p's name, or a bitmask list if multiple bits are set.
func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	s := ""
	for _, bit := range allProperties {
		if p&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += propertyNames[bit]
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// PropertySet is a monotone bitmask of Properties: bits may only be added.
type PropertySet uint32

// Has reports whether p is set.
func (s PropertySet) Has(p Property) bool {
	return uint32(s)&uint32(p) != 0
}

// With returns s with p added. Setting an already-set bit is a no-op
// (idempotent), matching the monotone-write invariant in §4.1.
func (s PropertySet) With(p Property) PropertySet {
	return PropertySet(uint32(s) | uint32(p))
}
