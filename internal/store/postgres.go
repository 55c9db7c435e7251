package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth-cli/internal/db"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const mapsTable = "choropleth_maps"

var mapsColumns = []string{"dataset", "selection", "run_id", "payload", "matched", "features", "created_at", "expires_at"}

// NewPostgres connects to connString and pings the server.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS choropleth_maps (
	dataset    TEXT        NOT NULL,
	selection  TEXT        NOT NULL,
	run_id     TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	matched    INTEGER     NOT NULL DEFAULT 0,
	features   INTEGER     NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (dataset, selection)
);

CREATE INDEX IF NOT EXISTS idx_choropleth_maps_expires_at ON choropleth_maps(expires_at);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// PutMap inserts or replaces an entry.
func (s *PostgresStore) PutMap(ctx context.Context, e Entry, ttl time.Duration) error {
	e = stamp(e, ttl, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO choropleth_maps (dataset, selection, run_id, payload, matched, features, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (dataset, selection) DO UPDATE SET
			run_id = EXCLUDED.run_id, payload = EXCLUDED.payload, matched = EXCLUDED.matched,
			features = EXCLUDED.features, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		e.Dataset, e.Selection, e.RunID, e.Payload, e.Matched, e.Features, e.CreatedAt, nullTime(e.ExpiresAt),
	)
	return eris.Wrapf(err, "postgres: put map %s/%s", e.Dataset, e.Selection)
}

// PutMaps bulk-upserts entries through a COPY into a temp table.
func (s *PostgresStore) PutMaps(ctx context.Context, entries []Entry, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(entries))
	for i, e := range entries {
		e = stamp(e, ttl, now)
		rows[i] = []any{e.Dataset, e.Selection, e.RunID, e.Payload, e.Matched, e.Features, e.CreatedAt, nullTime(e.ExpiresAt)}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        mapsTable,
		Columns:      mapsColumns,
		ConflictKeys: []string{"dataset", "selection"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: put maps")
	}
	return n, nil
}

// GetMap returns the live entry or nil.
func (s *PostgresStore) GetMap(ctx context.Context, dataset, selection string) (*Entry, error) {
	var (
		e       Entry
		expires *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT dataset, selection, run_id, payload, matched, features, created_at, expires_at FROM choropleth_maps
		 WHERE dataset = $1 AND selection = $2 AND (expires_at IS NULL OR expires_at > now())`,
		dataset, selection,
	).Scan(&e.Dataset, &e.Selection, &e.RunID, &e.Payload, &e.Matched, &e.Features, &e.CreatedAt, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get map")
	}
	if expires != nil {
		e.ExpiresAt = *expires
	}
	return &e, nil
}

// ListMaps returns live entries for dataset without payloads.
func (s *PostgresStore) ListMaps(ctx context.Context, dataset string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dataset, selection, run_id, matched, features, created_at, expires_at FROM choropleth_maps
		 WHERE dataset = $1 AND (expires_at IS NULL OR expires_at > now()) ORDER BY selection`,
		dataset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list maps")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			expires *time.Time
		)
		if err := rows.Scan(&e.Dataset, &e.Selection, &e.RunID, &e.Matched, &e.Features, &e.CreatedAt, &expires); err != nil {
			return nil, eris.Wrap(err, "postgres: scan map")
		}
		if expires != nil {
			e.ExpiresAt = *expires
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list maps iterate")
}

// DeleteExpired removes expired entries.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM choropleth_maps WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired maps")
	}
	return int(tag.RowsAffected()), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
