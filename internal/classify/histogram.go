package classify

import (
	"fmt"
	"math"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// DefaultHistogramBands groups countries into ten-year life-expectancy bands.
var DefaultHistogramBands = model.BinEdges{40, 50, 60, 70, 80, 90}

// BandCount is the number of values falling in one band.
type BandCount struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Label string  `json:"label"`
	Count int     `json:"count"`
}

// Histogram counts values per closed-open band [bands[i], bands[i+1]).
// Values outside the bands are not counted.
func Histogram(values []float64, bands model.BinEdges) []BandCount {
	out := make([]BandCount, bands.Bins())
	for i := range out {
		lo, hi := bands[i], bands[i+1]
		out[i] = BandCount{Low: lo, High: hi, Label: bandLabel(lo, hi)}
	}
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		for i := range out {
			if v >= out[i].Low && v < out[i].High {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// bandLabel renders integer bands inclusively ("40–49"), others as ranges.
func bandLabel(lo, hi float64) string {
	if lo == math.Trunc(lo) && hi == math.Trunc(hi) {
		return fmt.Sprintf("%.0f–%.0f", lo, hi-1)
	}
	return fmt.Sprintf("%g–%g", lo, hi)
}
