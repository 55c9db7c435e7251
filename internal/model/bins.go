package model

// BinEdges is an ordered sequence of at least three strictly increasing
// thresholds defining len-1 closed-open intervals (the last one closed).
type BinEdges []float64

// Valid reports whether the edges satisfy the length and ordering invariants.
func (b BinEdges) Valid() bool {
	if len(b) < 3 {
		return false
	}
	for i := 1; i < len(b); i++ {
		if !(b[i] > b[i-1]) {
			return false
		}
	}
	return true
}

// Covers reports whether [lo, hi] lies within the first and last edge.
func (b BinEdges) Covers(lo, hi float64) bool {
	if len(b) == 0 {
		return false
	}
	return b[0] <= lo && hi <= b[len(b)-1]
}

// Bins returns the number of intervals.
func (b BinEdges) Bins() int {
	if len(b) < 2 {
		return 0
	}
	return len(b) - 1
}
