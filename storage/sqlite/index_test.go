package sqlite

import (
	"context"
	"testing"

	"github.com/poiesic/tickerscout/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchIDs(matches []core.SimilarityMatch) []int64 {
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.CompanyId)
	}
	return out
}

func TestInitialize(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Initialize(context.Background()))
}

func TestStoreAndSearchSimilar(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	require.NoError(t, store.Store(ctx, 10, basis(0)))
	require.NoError(t, store.Store(ctx, 11, basis(1)))
	require.NoError(t, store.Store(ctx, 12, negate(basis(0))))

	matches, err := store.SearchSimilar(ctx, basis(0), 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []int64{10, 11, 12}, matchIDs(matches))
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.InDelta(t, 0.5, matches[1].Similarity, 1e-5)
	assert.InDelta(t, 0.0, matches[2].Similarity, 1e-5)

	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, float32(0))
		assert.LessOrEqual(t, m.Similarity, float32(1))
	}
}

func TestSearchSimilar_LimitAndTies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	// Three companies equidistant from the query.
	require.NoError(t, store.Store(ctx, 30, basis(3)))
	require.NoError(t, store.Store(ctx, 20, basis(2)))
	require.NoError(t, store.Store(ctx, 40, basis(4)))
	require.NoError(t, store.Store(ctx, 1, basis(0)))

	matches, err := store.SearchSimilar(ctx, basis(0), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 20, 30}, matchIDs(matches))

	matches, err = store.SearchSimilar(ctx, basis(0), 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_Upsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	require.NoError(t, store.Store(ctx, 7, negate(basis(0))))
	require.NoError(t, store.Store(ctx, 7, basis(0)))

	matches, err := store.SearchSimilar(ctx, basis(0), 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
}

func TestInitialize_Wipes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Store(ctx, 1, basis(0)))

	require.NoError(t, store.Initialize(ctx))

	matches, err := store.SearchSimilar(ctx, basis(0), 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDimensionMismatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	err := store.Store(ctx, 1, []float32{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = store.SearchSimilar(ctx, make([]float32, core.Dimensions+1), 5)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
