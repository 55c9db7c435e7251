package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/observation"
	"github.com/sells-group/choropleth-cli/internal/resilience"
)

var (
	fetchIndicator string
	fetchOut       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a GHO indicator table to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		indicator := fetchIndicator
		if indicator == "" {
			indicator = cfg.Fetch.Indicator
		}
		out := fetchOut
		if out == "" {
			out = cfg.Observations.Location
		}

		retry := resilience.FromRetryConfig(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoffMs, cfg.Fetch.MaxBackoffMs)
		client := observation.NewGHOClient(newFetcher(cfg), cfg.Fetch.GHOBaseURL, retry)

		records, err := client.Fetch(cmd.Context(), indicator)
		if err != nil {
			return err
		}

		if err := saveRecords(out, records, columns(cfg)); err != nil {
			return err
		}

		zap.L().Info("indicator saved",
			zap.String("indicator", indicator),
			zap.String("path", out),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

// saveRecords writes records as CSV to path, creating parent directories.
func saveRecords(path string, records []observation.Record, cols observation.Columns) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "fetch: create output dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "fetch: create output")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "fetch: close output")
		}
	}()
	return observation.WriteCSV(f, records, cols)
}

func init() {
	fetchCmd.Flags().StringVar(&fetchIndicator, "indicator", "", "GHO indicator code (default from config)")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output CSV path (default observations.location)")
	rootCmd.AddCommand(fetchCmd)
}
