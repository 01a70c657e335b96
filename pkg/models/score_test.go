package models

import "testing"

func TestFloatScoreCompareTo(t *testing.T) {
	cases := []struct {
		a, b Score
		want int
	}{
		{FloatScore(1), FloatScore(2), -1},
		{FloatScore(2), FloatScore(1), 1},
		{FloatScore(1), FloatScore(1), 0},
	}
	for _, c := range cases {
		if got := c.a.CompareTo(c.b); got != c.want {
			t.Errorf("%v.CompareTo(%v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

type fakeScore struct{}

func (fakeScore) CompareTo(Score) int { return 0 }
func (fakeScore) String() string      { return "fake" }

func TestFloatScoreCompareToForeignPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic comparing against a foreign Score implementation")
		}
	}()
	FloatScore(1).CompareTo(fakeScore{})
}
