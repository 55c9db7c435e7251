// Package engine runs one (period, category) selection end to end: category
// normalization, aggregation, adaptive classification, and the left join onto
// boundary features.
//
// Inputs are materialized once when the Engine is built and never mutated, so
// Run is safe to call from many goroutines.
package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/choropleth-cli/internal/aggregate"
	"github.com/sells-group/choropleth-cli/internal/annotate"
	"github.com/sells-group/choropleth-cli/internal/category"
	"github.com/sells-group/choropleth-cli/internal/classify"
	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/reconcile"
	"github.com/sells-group/choropleth-cli/internal/tables"
)

// DefaultConcurrency bounds RunAll when no limit is given.
const DefaultConcurrency = 4

// Options configures classification, labels and result caching.
type Options struct {
	// Reference is the preferred bin scale. Default: classify.DefaultReferenceScale.
	Reference model.BinEdges
	// Precision is the number of decimals in value labels. Default: 1.
	Precision int
	// NoDataLabel overrides annotate.NoDataLabel.
	NoDataLabel string
	// Cache keeps results in memory keyed by the canonical selection.
	Cache bool
}

func (o Options) withDefaults() Options {
	if len(o.Reference) == 0 {
		o.Reference = classify.DefaultReferenceScale
	}
	if o.Precision <= 0 {
		o.Precision = 1
	}
	if o.NoDataLabel == "" {
		o.NoDataLabel = annotate.NoDataLabel
	}
	return o
}

// Engine holds the immutable inputs of every selection.
type Engine struct {
	obs         []model.Observation
	features    []model.BoundaryFeature
	cats        *category.Normalizer
	recon       *reconcile.Reconciler
	opts        Options
	fingerprint string

	mu    sync.RWMutex
	cache map[string]*Result
}

// New builds an Engine. Input slices are copied. A nil t uses the embedded
// tables.
func New(obs []model.Observation, features []model.BoundaryFeature, t *tables.Tables, opts Options) (*Engine, error) {
	if t == nil {
		var err error
		if t, err = tables.Default(); err != nil {
			return nil, eris.Wrap(err, "engine: load default tables")
		}
	}
	opts = opts.withDefaults()
	if err := classify.ValidateReference(opts.Reference); err != nil {
		return nil, eris.Wrap(err, "engine: reference scale")
	}

	e := &Engine{
		obs:      append([]model.Observation(nil), obs...),
		features: append([]model.BoundaryFeature(nil), features...),
		cats:     category.NewNormalizer(t.Synonyms.ByCategory()),
		recon:    reconcile.New(reconcile.NewPatchTable(t.Patches)),
		opts:     opts,
	}
	e.opts.Reference = append(model.BinEdges(nil), opts.Reference...)
	e.fingerprint = fingerprint(e.obs, e.features, t, e.opts)
	if opts.Cache {
		e.cache = make(map[string]*Result)
	}
	return e, nil
}

// Query is a selection as a user typed it: any period text and any spelling
// of the category.
type Query struct {
	Period   string
	Category string
}

// Resolve canonicalizes a query. An unrecognized category resolves to
// CategoryUnknown, which Run treats as an empty selection.
func (e *Engine) Resolve(q Query) (model.Selection, error) {
	p := strings.TrimSpace(q.Period)
	period, err := strconv.Atoi(p)
	if err != nil {
		f, ferr := strconv.ParseFloat(p, 64)
		if ferr != nil || f != float64(int(f)) {
			return model.Selection{}, eris.Errorf("engine: invalid period %q", q.Period)
		}
		period = int(f)
	}
	return model.Selection{Period: period, Category: e.cats.NormalizeString(q.Category)}, nil
}

// Run computes the annotated map for one selection.
func (e *Engine) Run(ctx context.Context, sel model.Selection) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: run cancelled")
	}

	key := sel.Key()
	if cached := e.cached(key); cached != nil {
		return cached.clone(), nil
	}

	log := zap.L().With(
		zap.String("component", "engine"),
		zap.Int("period", sel.Period),
		zap.String("category", sel.Category.String()),
	)

	res := &Result{
		RunID:     uuid.NewString(),
		Selection: sel,
	}

	if sel.Category.Known() {
		res.Aggregated = aggregate.Aggregate(e.obs, sel, e.cats, e.recon)
	} else {
		res.Aggregated = []model.AggregatedValue{}
	}
	res.Empty = len(res.Aggregated) == 0

	opts := annotate.Options{Precision: e.opts.Precision, NoDataLabel: e.opts.NoDataLabel}
	if !res.Empty {
		edges, err := classify.ComputeBins(aggregate.Values(res.Aggregated), e.opts.Reference)
		if err != nil {
			return nil, eris.Wrap(err, "engine: classify")
		}
		res.Bins = edges
		res.BinLabels = classify.Labels(edges, e.opts.Precision)
		opts.Edges = edges
	}

	features, err := annotate.Annotate(e.features, res.Aggregated, e.recon, opts)
	if err != nil {
		return nil, eris.Wrap(err, "engine: annotate")
	}
	res.Features = features

	res.Diagnostics = e.recon.Unreconciled(e.features, res.Aggregated)
	res.Diagnostics.UnknownCategories = e.unknownCategories(sel.Period)

	if res.Empty {
		log.Info("no data for this selection")
	} else {
		log.Debug("selection computed",
			zap.Int("countries", len(res.Aggregated)),
			zap.Int("bins", res.Bins.Bins()),
			zap.Int("unmatched_features", len(res.Diagnostics.UnmatchedFeatures)),
			zap.Int("unmatched_codes", len(res.Diagnostics.UnmatchedCodes)),
		)
	}

	e.store(key, res)
	return res.clone(), nil
}

// RunQuery resolves and runs a raw query.
func (e *Engine) RunQuery(ctx context.Context, q Query) (*Result, error) {
	sel, err := e.Resolve(q)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, sel)
}

// RunAll computes every selection with at most concurrency in flight.
// Results keep the order of sels. The first error cancels the rest.
func (e *Engine) RunAll(ctx context.Context, sels []model.Selection, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]*Result, len(sels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sel := range sels {
		g.Go(func() error {
			res, err := e.Run(gctx, sel)
			if err != nil {
				return eris.Wrapf(err, "engine: selection %s", sel.Key())
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Histogram counts countries per band for a selection.
func (e *Engine) Histogram(ctx context.Context, sel model.Selection, bands model.BinEdges) ([]classify.BandCount, error) {
	if len(bands) == 0 {
		bands = classify.DefaultHistogramBands
	}
	if bands.Bins() == 0 {
		return nil, eris.New("engine: histogram needs at least two band edges")
	}
	res, err := e.Run(ctx, sel)
	if err != nil {
		return nil, err
	}
	return classify.Histogram(aggregate.Values(res.Aggregated), bands), nil
}

// Fingerprint identifies the engine inputs and options. Two engines with the
// same fingerprint produce the same results.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Features returns the number of boundary features the engine joins onto.
func (e *Engine) Features() int {
	return len(e.features)
}

func (e *Engine) unknownCategories(period int) []string {
	var raws []string
	for _, o := range e.obs {
		if o.Period == period && o.Admissible() {
			raws = append(raws, o.Category)
		}
	}
	return e.cats.Unmatched(raws)
}

func (e *Engine) cached(key string) *Result {
	if e.cache == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache[key]
}

func (e *Engine) store(key string, res *Result) {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cache[key]; !ok {
		e.cache[key] = res
	}
}
