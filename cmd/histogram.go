package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/choropleth-cli/internal/classify"
	"github.com/sells-group/choropleth-cli/internal/model"
)

var histogramCmd = &cobra.Command{
	Use:   "histogram",
	Short: "Count countries per life-expectancy band for one selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, cfg, "histogram")
		if err != nil {
			return err
		}

		sel, err := resolveSelection(env.Engine, selPeriod, selCategory)
		if err != nil {
			return err
		}
		counts, err := env.Engine.Histogram(ctx, sel, model.BinEdges(cfg.Classify.HistogramBands))
		if err != nil {
			return err
		}
		return printHistogram(cmd.OutOrStdout(), sel, counts)
	},
}

func printHistogram(w io.Writer, sel model.Selection, counts []classify.BandCount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Life expectancy, %s, %d\nBAND\tCOUNTRIES\n", sel.Category.Label(), sel.Period) //nolint:errcheck
	var total int
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Label, c.Count) //nolint:errcheck
		total += c.Count
	}
	fmt.Fprintf(tw, "total\t%d\n", total) //nolint:errcheck
	return tw.Flush()
}

func init() {
	addSelectionFlags(histogramCmd)
	rootCmd.AddCommand(histogramCmd)
}
