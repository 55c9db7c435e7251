package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth-cli/internal/engine"
)

// MissingHeader is the header row of WriteMissingCSV.
var MissingHeader = []string{"name", "canonical_id", "reason"}

// Reasons a feature has no value.
const (
	ReasonNoIdentifier = "no identifier"
	ReasonNoData       = "no data"
	ReasonNoBoundary   = "no boundary"
)

// WriteMissingCSV lists the features of res without a value, in feature
// order, followed by observation codes that no feature claimed.
func WriteMissingCSV(w io.Writer, res *engine.Result) error {
	if res == nil {
		return eris.New("export: nil result")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(MissingHeader); err != nil {
		return eris.Wrap(err, "export: write missing header")
	}
	for _, af := range res.Missing() {
		reason := ReasonNoData
		if af.CanonicalID == "" {
			reason = ReasonNoIdentifier
		}
		if err := cw.Write([]string{af.Feature.DisplayName, af.CanonicalID, reason}); err != nil {
			return eris.Wrap(err, "export: write missing row")
		}
	}
	for _, code := range res.Diagnostics.UnmatchedCodes {
		if err := cw.Write([]string{"", code, ReasonNoBoundary}); err != nil {
			return eris.Wrap(err, "export: write missing row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush missing csv")
}
