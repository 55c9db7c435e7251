package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/engine"
	"github.com/sells-group/choropleth-cli/internal/export"
	"github.com/sells-group/choropleth-cli/internal/store"
)

var (
	precomputeConcurrency int
	precomputePrune       bool
)

var precomputeCmd = &cobra.Command{
	Use:   "precompute",
	Short: "Render every (period, category) map into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if precomputeConcurrency > 0 {
			cfg.Precompute.Concurrency = precomputeConcurrency
		}
		env, err := initEngine(ctx, cfg, "precompute")
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if precomputePrune {
			n, err := st.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("expired maps removed", zap.Int("count", n))
		}

		_, err = precompute(ctx, env, st, cfg.Precompute.Concurrency, storeTTL(cfg))
		return err
	},
}

// precompute renders all selections and writes them in one batch.
func precompute(ctx context.Context, env *mapEnv, st store.Store, concurrency int, ttl time.Duration) (int64, error) {
	start := time.Now()
	sels := env.Engine.Selections()
	results, err := env.Engine.RunAll(ctx, sels, concurrency)
	if err != nil {
		return 0, err
	}

	entries := make([]store.Entry, 0, len(results))
	var empty int
	for _, res := range results {
		if res.Empty {
			empty++
		}
		e, err := mapEntry(env.Dataset, res)
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
	}

	n, err := st.PutMaps(ctx, entries, ttl)
	if err != nil {
		return 0, err
	}
	zap.L().Info("precompute complete",
		zap.String("dataset", env.Dataset),
		zap.Int("selections", len(sels)),
		zap.Int("empty", empty),
		zap.Int64("written", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}

func mapEntry(dataset string, res *engine.Result) (store.Entry, error) {
	payload, err := export.MarshalGeoJSON(res, export.GeoJSONOptions{})
	if err != nil {
		return store.Entry{}, err
	}
	return store.Entry{
		Dataset:   dataset,
		Selection: res.Selection.Key(),
		RunID:     res.RunID,
		Payload:   payload,
		Matched:   res.Matched(),
		Features:  len(res.Features),
	}, nil
}

func init() {
	precomputeCmd.Flags().IntVar(&precomputeConcurrency, "concurrency", 0, "selections computed in parallel (default from config)")
	precomputeCmd.Flags().BoolVar(&precomputePrune, "prune", false, "delete expired maps first")
	rootCmd.AddCommand(precomputeCmd)
}
