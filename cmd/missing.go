package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/choropleth-cli/internal/export"
)

var missingOut string

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List countries without data for one selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, cfg, "missing")
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

		w, closeFn, err := openOutput(cmd.OutOrStdout(), missingOut)
		if err != nil {
			return err
		}
		if err := export.WriteMissingCSV(w, res); err != nil {
			_ = closeFn()
			return err
		}
		return closeFn()
	},
}

func init() {
	addSelectionFlags(missingCmd)
	missingCmd.Flags().StringVarP(&missingOut, "out", "o", "", "output CSV path (default stdout)")
	rootCmd.AddCommand(missingCmd)
}
