package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on modernc.org/sqlite. Times are unix seconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS maps (
	dataset    TEXT    NOT NULL,
	selection  TEXT    NOT NULL,
	run_id     TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	matched    INTEGER NOT NULL DEFAULT 0,
	features   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (dataset, selection)
);

CREATE INDEX IF NOT EXISTS idx_maps_expires_at ON maps(expires_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsert = `INSERT INTO maps (dataset, selection, run_id, payload, matched, features, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (dataset, selection) DO UPDATE SET
		run_id = excluded.run_id, payload = excluded.payload, matched = excluded.matched,
		features = excluded.features, created_at = excluded.created_at, expires_at = excluded.expires_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putSQLite(ctx context.Context, x execer, e Entry) error {
	_, err := x.ExecContext(ctx, sqliteUpsert,
		e.Dataset, e.Selection, e.RunID, e.Payload, e.Matched, e.Features,
		e.CreatedAt.Unix(), unixOrNull(e.ExpiresAt),
	)
	return eris.Wrapf(err, "sqlite: put map %s/%s", e.Dataset, e.Selection)
}

// PutMap inserts or replaces an entry.
func (s *SQLiteStore) PutMap(ctx context.Context, e Entry, ttl time.Duration) error {
	return putSQLite(ctx, s.db, stamp(e, ttl, time.Now().UTC()))
}

// PutMaps writes entries in a single transaction.
func (s *SQLiteStore) PutMaps(ctx context.Context, entries []Entry, ttl time.Duration) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, e := range entries {
		if err := putSQLite(ctx, tx, stamp(e, ttl, now)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return int64(len(entries)), nil
}

// GetMap returns the live entry or nil.
func (s *SQLiteStore) GetMap(ctx context.Context, dataset, selection string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT dataset, selection, run_id, payload, matched, features, created_at, expires_at FROM maps
		 WHERE dataset = ? AND selection = ? AND (expires_at IS NULL OR expires_at > ?)`,
		dataset, selection, time.Now().Unix(),
	)
	e, err := scanSQLite(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get map")
	}
	return e, nil
}

// ListMaps returns live entries for dataset without payloads.
func (s *SQLiteStore) ListMaps(ctx context.Context, dataset string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset, selection, run_id, matched, features, created_at, expires_at FROM maps
		 WHERE dataset = ? AND (expires_at IS NULL OR expires_at > ?) ORDER BY selection`,
		dataset, time.Now().Unix(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list maps")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		e, err := scanSQLite(rows, false)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan map")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list maps iterate")
}

// DeleteExpired removes expired entries.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM maps WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired maps")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLite(row scannable, withPayload bool) (*Entry, error) {
	var (
		e       Entry
		created int64
		expires sql.NullInt64
		scanErr error
	)
	if withPayload {
		scanErr = row.Scan(&e.Dataset, &e.Selection, &e.RunID, &e.Payload, &e.Matched, &e.Features, &created, &expires)
	} else {
		scanErr = row.Scan(&e.Dataset, &e.Selection, &e.RunID, &e.Matched, &e.Features, &created, &expires)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	e.CreatedAt = time.Unix(created, 0).UTC()
	if expires.Valid {
		e.ExpiresAt = time.Unix(expires.Int64, 0).UTC()
	}
	return &e, nil
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
