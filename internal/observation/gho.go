package observation

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/resilience"
)

// DefaultGHOBaseURL is the Global Health Observatory OData endpoint.
const DefaultGHOBaseURL = "https://ghoapi.azureedge.net/api/"

// DefaultIndicator is life expectancy at birth.
const DefaultIndicator = "WHOSIS_000001"

// GHOClient downloads indicator tables from the GHO OData API.
type GHOClient struct {
	fetch   fetcher.Fetcher
	baseURL string
	retry   resilience.RetryConfig
}

// NewGHOClient creates a client. An empty baseURL uses DefaultGHOBaseURL.
func NewGHOClient(f fetcher.Fetcher, baseURL string, retry resilience.RetryConfig) *GHOClient {
	if baseURL == "" {
		baseURL = DefaultGHOBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &GHOClient{fetch: f, baseURL: baseURL, retry: retry}
}

// IndicatorURL returns the API URL for an indicator code.
func (c *GHOClient) IndicatorURL(indicator string) string {
	if indicator == "" {
		indicator = DefaultIndicator
	}
	return c.baseURL + indicator
}

// downloadError marks failures the fetcher has already retried on its own.
type downloadError struct{ err error }

func (e *downloadError) Error() string { return e.err.Error() }
func (e *downloadError) Unwrap() error { return e.err }

// Fetch downloads every record of the indicator. Only a body cut off
// mid-stream is retried here; request failures were retried by the fetcher.
func (c *GHOClient) Fetch(ctx context.Context, indicator string) ([]Record, error) {
	u := c.IndicatorURL(indicator)
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry(u)
	}
	shouldRetry := retry.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = resilience.IsTransient
	}
	retry.ShouldRetry = func(err error) bool {
		var de *downloadError
		if errors.As(err, &de) {
			return false
		}
		return shouldRetry(err)
	}

	records, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]Record, error) {
		body, err := c.fetch.Download(ctx, u)
		if err != nil {
			return nil, &downloadError{err: err}
		}
		defer body.Close() //nolint:errcheck
		return decodeRecords(ctx, body)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "observation: fetch indicator %s", indicator)
	}

	zap.L().Info("gho indicator fetched", zap.String("url", u), zap.Int("records", len(records)))
	return records, nil
}

// WriteCSV writes records as CSV with the observation columns first and the
// remaining fields sorted after them.
func WriteCSV(w io.Writer, records []Record, cols Columns) error {
	cols = cols.withDefaults()
	header := recordColumns(records, cols)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "observation: write csv header")
	}
	row := make([]string, len(header))
	for _, r := range records {
		for i, name := range header {
			row[i], _ = r.field(name)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "observation: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "observation: flush csv")
}
