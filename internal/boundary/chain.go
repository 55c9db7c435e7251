package boundary

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// Chain tries providers in order and returns the first one that yields
// features. Excluded names are removed from the winning layer.
type Chain struct {
	providers []Provider
	exclude   Exclude
}

// NewChain creates a Chain.
func NewChain(exclude Exclude, providers ...Provider) *Chain {
	return &Chain{providers: providers, exclude: exclude}
}

// Loaded is the outcome of a successful Chain.Load.
type Loaded struct {
	Source   string
	Features []model.BoundaryFeature
}

// Load returns the first provider's features. When every provider fails the
// error lists each failure; it is malformed input only if every provider
// failed that way.
func (c *Chain) Load(ctx context.Context) (*Loaded, error) {
	if len(c.providers) == 0 {
		return nil, eris.New("boundary: no providers configured")
	}

	var (
		errs      error
		malformed = true
	)
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "boundary: load cancelled")
		}

		features, err := p.Load(ctx)
		if err == nil && len(features) == 0 {
			err = model.MalformedInput("boundary: %s returned no features", p.Name())
		}
		if err != nil {
			zap.L().Warn("boundary: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			errs = multierr.Append(errs, eris.Wrap(err, p.Name()))
			malformed = malformed && model.IsMalformedInput(err)
			continue
		}

		kept := c.exclude.Apply(features)
		if len(kept) == 0 {
			err := model.MalformedInput("boundary: %s has only excluded features", p.Name())
			errs = multierr.Append(errs, err)
			continue
		}

		zap.L().Info("boundary layer loaded",
			zap.String("provider", p.Name()),
			zap.Int("features", len(kept)),
			zap.Int("excluded", len(features)-len(kept)),
		)
		return &Loaded{Source: p.Name(), Features: kept}, nil
	}

	if malformed {
		return nil, model.MalformedInput("boundary: all providers failed: %v", errs)
	}
	return nil, eris.Wrap(errs, "boundary: all providers failed")
}
