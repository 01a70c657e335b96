package lattice

import "testing"

func TestPropertySetHasWith(t *testing.T) {
	var s PropertySet
	if s.Has(PropertyChecked) {
		t.Fatal("empty set should not have PropertyChecked")
	}
	s = s.With(PropertyChecked)
	if !s.Has(PropertyChecked) {
		t.Fatal("expected PropertyChecked to be set")
	}
	if s.Has(PropertyAnonymous) {
		t.Fatal("should not have an unrelated property set")
	}
	// Setting again is idempotent.
	s2 := s.With(PropertyChecked)
	if s2 != s {
		t.Fatal("setting an already-set property should be a no-op")
	}
}

func TestPropertyDirection(t *testing.T) {
	cases := map[Property]Direction{
		PropertyAnonymous:    DirectionUp,
		PropertyKAnonymous:   DirectionUp,
		PropertyNotAnonymous: DirectionDown,
		PropertyChecked:      DirectionNone,
	}
	for p, want := range cases {
		if got := p.Direction(); got != want {
			t.Errorf("%s.Direction() = %s, want %s", p, got, want)
		}
	}
}
