// Package store caches rendered choropleth maps per dataset and selection.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Entry is one rendered map.
type Entry struct {
	Dataset   string    `json:"dataset"`
	Selection string    `json:"selection"` // model.Selection.Key()
	RunID     string    `json:"run_id"`
	Payload   []byte    `json:"-"` // GeoJSON FeatureCollection
	Matched   int       `json:"matched"`
	Features  int       `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"` // zero never expires
}

// Store persists rendered maps.
type Store interface {
	// GetMap returns the live entry, or nil when it is absent or expired.
	GetMap(ctx context.Context, dataset, selection string) (*Entry, error)
	// PutMap inserts or replaces an entry. ttl <= 0 keeps it forever.
	PutMap(ctx context.Context, e Entry, ttl time.Duration) error
	// PutMaps writes many entries at once and returns the rows written.
	PutMaps(ctx context.Context, entries []Entry, ttl time.Duration) (int64, error)
	// ListMaps returns live entries for a dataset without payloads, ordered by selection.
	ListMaps(ctx context.Context, dataset string) ([]Entry, error)
	DeleteExpired(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open connects to the configured store and applies its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "choropleth.db"
		}
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func stamp(e Entry, ttl time.Duration, now time.Time) Entry {
	e.CreatedAt = now
	e.ExpiresAt = time.Time{}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}
