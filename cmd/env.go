package main

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/choropleth-cli/internal/boundary"
	"github.com/sells-group/choropleth-cli/internal/config"
	"github.com/sells-group/choropleth-cli/internal/engine"
	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/observation"
	"github.com/sells-group/choropleth-cli/internal/resilience"
	"github.com/sells-group/choropleth-cli/internal/store"
	"github.com/sells-group/choropleth-cli/internal/tables"
)

// mapEnv holds the engine and what it was built from, shared by the
// build/missing/histogram/precompute/serve commands.
type mapEnv struct {
	Engine   *engine.Engine
	Boundary string // provider that supplied the features
	Dataset  string // engine fingerprint, the store's dataset key
}

// initEngine validates config for mode, loads the tables, observations, and
// boundary layer, and builds the engine.
func initEngine(ctx context.Context, c *config.Config, mode string) (*mapEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	cols := columns(c)
	if err := cols.Validate(); err != nil {
		return nil, err
	}

	tbl, err := tables.Load(c.Tables.Path)
	if err != nil {
		return nil, err
	}

	f := newFetcher(c)
	chain, err := boundaryChain(c, f)
	if err != nil {
		return nil, err
	}
	loader := observation.NewLoader(f,
		observation.WithColumns(cols),
		observation.WithFormat(c.Observations.Format),
		observation.WithSheet(c.Observations.Sheet),
	)

	var (
		obs    []model.Observation
		loaded *boundary.Loaded
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		obs, err = loader.Load(gctx, c.Observations.Location)
		return err
	})
	g.Go(func() error {
		var err error
		loaded, err = chain.Load(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	eng, err := engine.New(obs, loaded.Features, tbl, engineOptions(c))
	if err != nil {
		return nil, err
	}

	env := &mapEnv{Engine: eng, Boundary: loaded.Source, Dataset: eng.Fingerprint()}
	zap.L().Info("engine ready",
		zap.String("dataset", env.Dataset),
		zap.String("boundary", env.Boundary),
		zap.Int("observations", len(obs)),
		zap.Int("features", eng.Features()),
		zap.Ints("periods", eng.Periods()),
	)
	return env, nil
}

func newFetcher(c *config.Config) *fetcher.Router {
	retry := resilience.FromRetryConfig(c.Fetch.MaxAttempts, c.Fetch.InitialBackoffMs, c.Fetch.MaxBackoffMs)
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	return fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: c.Fetch.UserAgent, Timeout: timeout, Retry: retry}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout, Retry: retry}),
	)
}

func columns(c *config.Config) observation.Columns {
	cc := c.Observations.Columns
	return observation.Columns{
		DimensionType: cc.DimensionType,
		CountryCode:   cc.CountryCode,
		Period:        cc.Period,
		Category:      cc.Category,
		Value:         cc.Value,
	}
}

func boundaryChain(c *config.Config, f fetcher.Fetcher) (*boundary.Chain, error) {
	fx := boundary.FieldExtractor{IDKeys: c.Boundary.IDKeys, NameKeys: c.Boundary.NameKeys}
	providers := make([]boundary.Provider, 0, len(c.Boundary.Sources))
	for _, s := range c.Boundary.Sources {
		switch s.Type {
		case config.BoundaryTypeGeoJSON:
			providers = append(providers, boundary.NewGeoJSON(f, s.Location, fx))
		case config.BoundaryTypeShapefile:
			providers = append(providers, boundary.NewShapefile(f, s.Location, fx))
		default:
			return nil, eris.Errorf("boundary: unknown source type %q", s.Type)
		}
	}
	return boundary.NewChain(boundary.Exclude(c.Boundary.Exclude), providers...), nil
}

func engineOptions(c *config.Config) engine.Options {
	return engine.Options{
		Reference:   model.BinEdges(c.Classify.Reference),
		Precision:   c.Classify.Precision,
		NoDataLabel: c.Classify.NoDataLabel,
		Cache:       true,
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool:        &store.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
	})
}

func storeTTL(c *config.Config) time.Duration {
	return time.Duration(c.Store.TTLHours) * time.Hour
}

// resolveSelection turns flag or query values into a canonical selection. A
// blank period picks the most recent one; a blank category means both sexes.
func resolveSelection(eng *engine.Engine, period, category string) (model.Selection, error) {
	if period == "" {
		periods := eng.Periods()
		if len(periods) == 0 {
			return model.Selection{}, eris.New("no periods with data")
		}
		return resolveSelection(eng, strconv.Itoa(periods[0]), category)
	}
	if category == "" {
		category = model.CategoryBoth.String()
	}
	return eng.Resolve(engine.Query{Period: period, Category: category})
}
