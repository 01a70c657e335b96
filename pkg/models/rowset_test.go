package models

import "testing"

func TestRowSetAddContainsLen(t *testing.T) {
	rs := NewRowSet(10)
	if rs.Len() != 0 {
		t.Fatalf("expected empty set, got len %d", rs.Len())
	}
	rs.Add(3)
	rs.Add(7)
	rs.Add(3) // idempotent
	if rs.Len() != 2 {
		t.Fatalf("expected len 2, got %d", rs.Len())
	}
	if !rs.Contains(3) || !rs.Contains(7) {
		t.Fatal("expected rows 3 and 7 to be present")
	}
	if rs.Contains(4) {
		t.Fatal("row 4 should not be present")
	}
}

func TestRowSetRowsAscending(t *testing.T) {
	rs := NewRowSet(20)
	for _, r := range []int{9, 1, 5, 0} {
		rs.Add(r)
	}
	rows := rs.Rows()
	want := []int{0, 1, 5, 9}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, r := range want {
		if rows[i] != r {
			t.Fatalf("rows[%d] = %d, want %d (rows=%v)", i, rows[i], r, rows)
		}
	}
}

func TestRowSetDenseIndexOf(t *testing.T) {
	rs := NewRowSet(20)
	rs.Add(2)
	rs.Add(5)
	rs.Add(8)
	if rs.DenseIndexOf(5) != 1 {
		t.Fatalf("expected dense index 1, got %d", rs.DenseIndexOf(5))
	}
	if rs.DenseIndexOf(4) != -1 {
		t.Fatalf("expected -1 for unselected row, got %d", rs.DenseIndexOf(4))
	}
}

func TestOutlierMaskRoundTrip(t *testing.T) {
	generalized := [][]int32{{5, 1}, {9, 2}}
	if IsOutlierRow(generalized, 0) {
		t.Fatal("row 0 should not start as an outlier")
	}
	SetOutlierRow(generalized, 0, true)
	if !IsOutlierRow(generalized, 0) {
		t.Fatal("row 0 should be flagged as an outlier")
	}
	if generalized[0][0]&^OutlierMask != 5 {
		t.Fatalf("expected value bits to survive flagging, got %d", generalized[0][0]&^OutlierMask)
	}
	SetOutlierRow(generalized, 0, false)
	if IsOutlierRow(generalized, 0) {
		t.Fatal("row 0 should have its outlier flag cleared")
	}
}
