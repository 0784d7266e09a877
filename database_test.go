package tickerscout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/ai/mock"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/embedding"
	"github.com/poiesic/tickerscout/search"
	"github.com/poiesic/tickerscout/storage"
	"github.com/poiesic/tickerscout/storage/sqlite"
)

func ptr[T any](v T) *T { return &v }

func sqliteDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "catalog.db")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite without provider", func(t *testing.T) {
		db, err := Open(ctx, sqliteDSN(t))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, storage.BackendSQLite, db.Backend())
		assert.NotNil(t, db.Catalog())
		assert.NotNil(t, db.Index())
		assert.Same(t, db.Catalog().(*sqlite.Store), db.Index().(*sqlite.Store), "catalog and index share one store")

		_, err = db.NewEmbeddingPipeline()
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
		_, err = db.NewSearcher()
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("bare sqlite path", func(t *testing.T) {
		db, err := Open(ctx, filepath.Join(t.TempDir(), "catalog.sqlite"))
		require.NoError(t, err)
		defer db.Close()
		assert.Equal(t, storage.BackendSQLite, db.Backend())
	})

	t.Run("empty dsn", func(t *testing.T) {
		db, err := Open(ctx, "")
		assert.ErrorIs(t, err, storage.ErrUnknownBackend)
		assert.Nil(t, db)
	})

	t.Run("invalid AI config closes store", func(t *testing.T) {
		db, err := Open(ctx, sqliteDSN(t), WithAIConfig(ai.NewConfig()))
		assert.ErrorIs(t, err, ai.ErrAPIKeyRequired)
		assert.Nil(t, db)
	})

	t.Run("cache dir that is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		provider := mock.NewMockProvider()
		db, err := Open(ctx, sqliteDSN(t), WithProvider(provider), WithCacheDir(file))
		assert.Error(t, err)
		assert.Nil(t, db)
		assert.True(t, provider.(*mock.MockProvider).IsClosed())
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	db, err := Open(context.Background(), sqliteDSN(t), WithProvider(provider), WithMemoryCache())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).IsClosed())
	assert.True(t, db.cacheBackend.IsClosed())
}

func TestDatabase_EmbedThenSearch(t *testing.T) {
	ctx := context.Background()
	provider := mock.NewMockProvider()
	embedder := provider.(*mock.MockProvider).GetMockEmbedder()

	db, err := Open(ctx, sqliteDSN(t), WithProvider(provider), WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Catalog().AddCompanies(ctx,
		&core.Company{Id: 1, Symbol: "ACME", ShortName: "Acme", Sector: "Technology",
			MarketCap: ptr(5e9), LongBusinessSummary: ptr("Acme builds cloud software.")},
		&core.Company{Id: 2, Symbol: "GLOB", ShortName: "Globex", Sector: "Energy",
			MarketCap: ptr(8e9), LongBusinessSummary: ptr("Globex drills for oil.")},
		&core.Company{Id: 3, Symbol: "BARE", ShortName: "Bare", Sector: "Energy"},
	))

	pipeline, err := db.NewEmbeddingPipeline(embedding.WithBatchDelay(0))
	require.NoError(t, err)
	defer pipeline.Release()

	report, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Processed)

	companies, err := db.Catalog().GetCompanies(ctx, []int64{1, 2, 3}, core.Filters{})
	require.NoError(t, err)
	for _, c := range companies {
		if c.Id == 3 {
			assert.False(t, c.HasEmbedding)
			continue
		}
		assert.True(t, c.HasEmbedding)
		vec, err := storage.UnmarshalEmbedding(c.Embedding)
		require.NoError(t, err)
		assert.Equal(t, mock.Vector(c.Summary()), vec)
	}

	searcher, err := db.NewSearcher()
	require.NoError(t, err)

	callsBefore := embedder.CallCount()
	for range 2 {
		results, err := searcher.Search(ctx, ptr("Globex drills for oil."), core.Filters{})
		require.NoError(t, err)
		assert.Equal(t, search.TierResolve, results.Tier)
		require.NotEmpty(t, results.Items)
		assert.Equal(t, "GLOB", results.Items[0].Company.Symbol)
	}
	assert.Equal(t, callsBefore+1, embedder.CallCount(), "second query served from cache")
}
