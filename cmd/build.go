package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/export"
)

var (
	selPeriod   string
	selCategory string

	buildOut         string
	buildSourceProps bool
	buildIndent      bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Write the annotated GeoJSON map for one selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, cfg, "build")
		if err != nil {
			return err
		}

		sel, err := resolveSelection(env.Engine, selPeriod, selCategory)
		if err != nil {
			return err
		}
		res, err := env.Engine.Run(ctx, sel)
		if err != nil {
			return err
		}

		w, closeFn, err := openOutput(cmd.OutOrStdout(), buildOut)
		if err != nil {
			return err
		}
		if err := export.WriteGeoJSON(w, res, export.GeoJSONOptions{SourceProperties: buildSourceProps, Indent: buildIndent}); err != nil {
			_ = closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}

		zap.L().Info("map built",
			zap.String("selection", sel.Key()),
			zap.String("run_id", res.RunID),
			zap.Bool("empty", res.Empty),
			zap.Int("matched", res.Matched()),
			zap.Int("features", len(res.Features)),
			zap.Float64s("bins", res.Bins),
		)
		return nil
	},
}

// openOutput returns stdout for "" or "-", otherwise a created file. The
// returned close func reports the file's Close error so a failed flush is not
// mistaken for success.
func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, func() error { return eris.Wrapf(f.Close(), "close %s", path) }, nil
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&selPeriod, "period", "", "period, e.g. 2019 (default: most recent)")
	cmd.Flags().StringVar(&selCategory, "category", "BOTH", "category in any spelling: BOTH, male, Female, SEX_BTSX...")
}

func init() {
	addSelectionFlags(buildCmd)
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output path (default stdout)")
	buildCmd.Flags().BoolVar(&buildSourceProps, "source-props", false, "copy boundary dataset properties onto features")
	buildCmd.Flags().BoolVar(&buildIndent, "indent", false, "pretty-print the GeoJSON")
	rootCmd.AddCommand(buildCmd)
}
