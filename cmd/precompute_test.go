package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth-cli/internal/store"
)

func TestPrecompute(t *testing.T) {
	env, fx := newTestEnv(t)
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Driver: "sqlite", DatabaseURL: fx.DB})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := precompute(ctx, env, st, 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	entries, err := st.ListMaps(ctx, env.Dataset)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"2019:BOTH", "2019:FEMALE", "2020:BOTH", "2020:FEMALE"},
		[]string{entries[0].Selection, entries[1].Selection, entries[2].Selection, entries[3].Selection})

	e, err := st.GetMap(ctx, env.Dataset, "2020:BOTH")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Contains(t, string(e.Payload), `"FeatureCollection"`)
	assert.Equal(t, 2, e.Matched)
	assert.Equal(t, 2, e.Features)

	empty, err := st.GetMap(ctx, env.Dataset, "2019:FEMALE")
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Equal(t, 0, empty.Matched)
}
