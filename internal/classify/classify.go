// Package classify computes choropleth bin edges that always cover the
// observed value range.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// DefaultReferenceScale is the preferred life-expectancy scale in years.
var DefaultReferenceScale = model.BinEdges{50, 60, 70, 80, 87}

// fallbackPoints is the number of edges generated for degenerate ranges.
const fallbackPoints = 5

// ErrNoValues is returned when there is nothing to classify. Callers render an
// unclassified map instead.
var ErrNoValues = eris.New("classify: no finite values")

// ValidateReference checks that a reference scale has at least three finite,
// strictly increasing edges.
func ValidateReference(ref model.BinEdges) error {
	if len(ref) < 3 {
		return eris.Errorf("classify: reference scale needs at least 3 edges, got %d", len(ref))
	}
	for i, v := range ref {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("classify: reference edge %d is not finite", i)
		}
		if i > 0 && !(v > ref[i-1]) {
			return eris.Errorf("classify: reference edges not strictly increasing at %d (%g <= %g)", i, v, ref[i-1])
		}
	}
	return nil
}

// ComputeBins returns the reference scale unchanged when it covers every value,
// and otherwise a covering scale built from the floor of the minimum, the
// ceiling of the maximum and the reference's interior edges. Non-finite values
// are ignored.
func ComputeBins(values []float64, ref model.BinEdges) (model.BinEdges, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}

	vmin, vmax, ok := finiteRange(values)
	if !ok {
		return nil, ErrNoValues
	}

	if ref.Covers(vmin, vmax) {
		out := make(model.BinEdges, len(ref))
		copy(out, ref)
		return out, nil
	}

	low, high := math.Floor(vmin), math.Ceil(vmax)

	candidates := make([]float64, 0, len(ref))
	candidates = append(candidates, low, high)
	candidates = append(candidates, ref[1:len(ref)-1]...)
	sort.Float64s(candidates)

	edges := make(model.BinEdges, 0, len(candidates))
	for _, c := range candidates {
		if len(edges) == 0 || c > edges[len(edges)-1] {
			edges = append(edges, c)
		}
	}

	if len(edges) < 3 {
		edges = evenlySpaced(low, high, fallbackPoints)
	}

	if !edges.Valid() || !edges.Covers(vmin, vmax) {
		return nil, eris.Errorf("classify: could not build covering scale for [%g, %g]", vmin, vmax)
	}
	return edges, nil
}

// evenlySpaced returns n points spanning [low, high], widening a zero span.
func evenlySpaced(low, high float64, n int) model.BinEdges {
	if high <= low {
		high = low + 1
	}
	if high <= low {
		// low+1 is not representable at this magnitude.
		high = low + math.Abs(low)*1e-6
	}
	step := (high - low) / float64(n-1)
	out := make(model.BinEdges, n)
	for i := range n {
		out[i] = low + step*float64(i)
	}
	out[n-1] = high
	return out
}

func finiteRange(values []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}

// BinIndex returns the interval index of v: intervals are closed-open except
// the last, which also includes the top edge. Values outside the edges return -1.
func BinIndex(v float64, edges model.BinEdges) int {
	n := edges.Bins()
	if n == 0 || math.IsNaN(v) || v < edges[0] || v > edges[len(edges)-1] {
		return -1
	}
	if v == edges[len(edges)-1] {
		return n - 1
	}
	// First edge strictly greater than v, minus one.
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > v })
	return i - 1
}

// Labels returns a range label per interval, e.g. "50–60".
func Labels(edges model.BinEdges, precision int) []string {
	out := make([]string, 0, edges.Bins())
	for i := 0; i < edges.Bins(); i++ {
		out = append(out, fmt.Sprintf("%.*f–%.*f", precision, edges[i], precision, edges[i+1]))
	}
	return out
}
