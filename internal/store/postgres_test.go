package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS choropleth_maps`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMap(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT dataset, selection, run_id, payload, matched, features, created_at, expires_at FROM choropleth_maps`).
		WithArgs("ds1", "2019:BOTH").
		WillReturnRows(pgxmock.NewRows(mapsColumns).
			AddRow("ds1", "2019:BOTH", "run-1", []byte(`{"type":"FeatureCollection"}`), 170, 176, created, (*time.Time)(nil)))

	e, err := s.GetMap(context.Background(), "ds1", "2019:BOTH")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, 170, e.Matched)
	assert.Equal(t, created, e.CreatedAt)
	assert.True(t, e.ExpiresAt.IsZero())
	assert.JSONEq(t, `{"type":"FeatureCollection"}`, string(e.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMap_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM choropleth_maps`).
		WithArgs("ds1", "1900:BOTH").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetMap(context.Background(), "ds1", "1900:BOTH")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMap_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM choropleth_maps`).
		WithArgs("ds1", "2019:BOTH").
		WillReturnError(errors.New("conn closed"))

	_, err := s.GetMap(context.Background(), "ds1", "2019:BOTH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get map")
}

func TestPostgresStore_PutMap(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`ON CONFLICT \(dataset, selection\) DO UPDATE`).
		WithArgs("ds1", "2019:MALE", "run-1", []byte("{}"), 3, 4, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutMap(context.Background(), Entry{
		Dataset: "ds1", Selection: "2019:MALE", RunID: "run-1", Payload: []byte("{}"), Matched: 3, Features: 4,
	}, time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutMaps(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_choropleth_maps"}, mapsColumns).WillReturnResult(2)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.PutMaps(context.Background(), []Entry{
		{Dataset: "ds1", Selection: "2019:BOTH", RunID: "r", Payload: []byte("{}")},
		{Dataset: "ds1", Selection: "2019:MALE", RunID: "r", Payload: []byte("{}")},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutMaps_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	n, err := s.PutMaps(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMaps(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	expires := created.Add(time.Hour)

	mock.ExpectQuery(`ORDER BY selection`).
		WithArgs("ds1").
		WillReturnRows(pgxmock.NewRows([]string{"dataset", "selection", "run_id", "matched", "features", "created_at", "expires_at"}).
			AddRow("ds1", "2019:BOTH", "r", 10, 12, created, &expires).
			AddRow("ds1", "2019:FEMALE", "r", 9, 12, created, (*time.Time)(nil)))

	entries, err := s.ListMaps(context.Background(), "ds1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, expires, entries[0].ExpiresAt)
	assert.True(t, entries[1].ExpiresAt.IsZero())
	assert.Nil(t, entries[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`DELETE FROM choropleth_maps WHERE expires_at IS NOT NULL`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
