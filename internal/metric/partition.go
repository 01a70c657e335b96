package metric

import "math"

// PartitionComparator measures how much two row partitions differ, using
// the adjusted Rand index and variation of information. The two
// partitions being compared are a buffer's equivalence classes before and
// after a local-recoding splice, so a caller can log how much structure a
// refinement actually changed. Both metrics are computed directly from
// the row-index equivalence classes the checker produces, with no
// external ground truth involved.
type PartitionComparator struct{}

func NewPartitionComparator() *PartitionComparator { return &PartitionComparator{} }

// rowLabels flattens row->class-index labels from a set of row-index
// groups, so pair-counting can run in O(n) over a label slice instead of
// O(n^2) over raw groups.
func rowLabels(classes [][]int) map[int]int {
	labels := make(map[int]int)
	for ci, rows := range classes {
		for _, r := range rows {
			labels[r] = ci
		}
	}
	return labels
}

// AdjustedRandIndex computes the ARI between two partitions of the same row
// set, in [-1, 1] (1 = identical clustering, ~0 = no better than random).
func (c *PartitionComparator) AdjustedRandIndex(a, b [][]int) float64 {
	la, lb := rowLabels(a), rowLabels(b)

	contingency := make(map[[2]int]int)
	aCounts := make(map[int]int)
	bCounts := make(map[int]int)
	n := 0
	for row, ca := range la {
		cb, ok := lb[row]
		if !ok {
			continue
		}
		contingency[[2]int{ca, cb}]++
		aCounts[ca]++
		bCounts[cb]++
		n++
	}
	if n == 0 {
		return 1
	}

	sumComb := func(counts map[int]int) float64 {
		total := 0.0
		for _, v := range counts {
			total += comb2(v)
		}
		return total
	}

	indexSum := 0.0
	for _, v := range contingency {
		indexSum += comb2(v)
	}
	aSum := sumComb(aCounts)
	bSum := sumComb(bCounts)
	nComb := comb2(n)
	if nComb == 0 {
		return 1
	}

	expectedIndex := aSum * bSum / nComb
	maxIndex := 0.5 * (aSum + bSum)
	denom := maxIndex - expectedIndex
	if denom == 0 {
		return 1
	}
	return (indexSum - expectedIndex) / denom
}

func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	f := float64(n)
	return f * (f - 1) / 2
}

// VariationOfInformation computes VI(a,b) = H(a) + H(b) - 2*I(a,b), an
// information-theoretic distance between the two partitions — 0 means
// identical, larger means more divergent.
func (c *PartitionComparator) VariationOfInformation(a, b [][]int) float64 {
	la, lb := rowLabels(a), rowLabels(b)
	n := 0
	joint := make(map[[2]int]int)
	aCounts := make(map[int]int)
	bCounts := make(map[int]int)
	for row, ca := range la {
		cb, ok := lb[row]
		if !ok {
			continue
		}
		joint[[2]int{ca, cb}]++
		aCounts[ca]++
		bCounts[cb]++
		n++
	}
	if n == 0 {
		return 0
	}

	entropy := func(counts map[int]int) float64 {
		h := 0.0
		for _, v := range counts {
			p := float64(v) / float64(n)
			h -= p * math.Log2(p)
		}
		return h
	}

	mutualInfo := 0.0
	for key, v := range joint {
		pij := float64(v) / float64(n)
		pi := float64(aCounts[key[0]]) / float64(n)
		pj := float64(bCounts[key[1]]) / float64(n)
		mutualInfo += pij * math.Log2(pij/(pi*pj))
	}

	return entropy(aCounts) + entropy(bCounts) - 2*mutualInfo
}
