package embedding

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/tickerscout/ai/mock"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/storage"
)

// recordingSleep replaces the pipeline's batch delay with a recorder.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

func newTestPipeline(t *testing.T, catalog *memCatalog, index storage.VectorIndex, embedder *mock.MockEmbedder, opts ...Option) (*Pipeline, *recordingSleep) {
	t.Helper()
	p, err := NewPipeline(catalog, index, mock.NewMockProviderWithEmbedder(embedder), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	rec := &recordingSleep{}
	p.sleep = rec.sleep
	return p, rec
}

func TestNewPipeline(t *testing.T) {
	catalog := newMemCatalog()
	index := newMemIndex()
	provider := mock.NewMockProvider()

	t.Run("defaults", func(t *testing.T) {
		p, err := NewPipeline(catalog, index, provider)
		require.NoError(t, err)
		defer p.Release()
		assert.Equal(t, DefaultBatchSize, p.batchSize)
		assert.Equal(t, DefaultBatchDelay, p.batchDelay)
		assert.Equal(t, DefaultMaxAttempts, p.maxAttempts)
		assert.Equal(t, DefaultBatchSize, p.pool.Cap())
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewPipeline(nil, index, provider)
		assert.ErrorIs(t, err, ErrCatalogRequired)
		_, err = NewPipeline(catalog, nil, provider)
		assert.ErrorIs(t, err, ErrIndexRequired)
		_, err = NewPipeline(catalog, index, nil)
		assert.ErrorIs(t, err, ErrAIProviderRequired)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewPipeline(catalog, index, provider, WithBatchSize(0))
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
		_, err = NewPipeline(catalog, index, provider, WithMaxAttempts(-1))
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		_, err = NewPipeline(catalog, index, provider, WithBatchDelay(-time.Second))
		assert.Error(t, err)
	})

	t.Run("logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		p, err := NewPipeline(newMemCatalog(makeCompanies(1)...), newMemIndex(), provider, WithLogger(logger))
		require.NoError(t, err)
		defer p.Release()
		p.sleep = (&recordingSleep{}).sleep

		_, err = p.Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "component=embedding-pipeline")

		p, err = NewPipeline(catalog, index, provider, WithLogger(nil))
		require.NoError(t, err)
		defer p.Release()
		assert.NotNil(t, p.logger, "nil falls back to slog.Default()")
	})

	t.Run("custom options", func(t *testing.T) {
		p, err := NewPipeline(catalog, index, provider,
			WithBatchSize(4), WithBatchDelay(0), WithMaxAttempts(3), WithRetryBaseDelay(time.Millisecond))
		require.NoError(t, err)
		defer p.Release()
		assert.Equal(t, 4, p.batchSize)
		assert.Equal(t, time.Duration(0), p.batchDelay)
		assert.Equal(t, 3, p.maxAttempts)
		assert.Equal(t, time.Millisecond, p.retryBaseDelay)
	})
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("embeds every company in batches", func(t *testing.T) {
		companies := makeCompanies(12)
		catalog := newMemCatalog(companies...)
		index := newMemIndex()
		embedder := mock.NewMockEmbedder()
		p, rec := newTestPipeline(t, catalog, index, embedder)

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 12, report.Total)
		assert.Equal(t, 12, report.Processed)
		assert.Equal(t, 0, report.Failed)
		assert.Equal(t, 2, report.Batches)
		assert.Equal(t, []time.Duration{DefaultBatchDelay}, rec.delays, "delay only between batches")
		assert.Equal(t, 12, index.stored())
		assert.Equal(t, 1, index.initialized)
		assert.Equal(t, 12, embedder.CallCount())
		assert.Contains(t, report.String(), "embedded 12/12 companies (0 failed) in 2 batches")
	})

	t.Run("skips companies without summary", func(t *testing.T) {
		companies := makeCompanies(3)
		companies[1].LongBusinessSummary = nil
		catalog := newMemCatalog(companies...)
		index := newMemIndex()
		p, rec := newTestPipeline(t, catalog, index, mock.NewMockEmbedder())

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Batches)
		assert.Empty(t, rec.delays)
		_, ok := index.vector(2)
		assert.False(t, ok)
	})

	t.Run("empty catalog", func(t *testing.T) {
		p, rec := newTestPipeline(t, newMemCatalog(), newMemIndex(), mock.NewMockEmbedder())

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, &Report{Elapsed: report.Elapsed}, report)
		assert.Empty(t, rec.delays)
	})

	t.Run("company failure does not stop run", func(t *testing.T) {
		companies := makeCompanies(12)
		catalog := newMemCatalog(companies...)
		index := newMemIndex()
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if text == companies[4].Summary() {
				return nil, errors.New("provider unavailable")
			}
			return mock.Vector(text), nil
		}
		p, _ := newTestPipeline(t, catalog, index, embedder)

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 11, report.Processed)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 11, index.stored())
		_, ok := catalog.blob(5)
		assert.False(t, ok)
	})

	t.Run("index initialization failure aborts", func(t *testing.T) {
		index := newMemIndex()
		index.initErr = core.ErrInitialization
		embedder := mock.NewMockEmbedder()
		p, _ := newTestPipeline(t, newMemCatalog(makeCompanies(2)...), index, embedder)

		report, err := p.Run(ctx)
		assert.ErrorIs(t, err, core.ErrInitialization)
		assert.Nil(t, report)
		assert.Zero(t, embedder.CallCount())
	})

	t.Run("catalog failure aborts", func(t *testing.T) {
		catalog := newMemCatalog()
		catalog.findErr = core.ErrConnection
		p, _ := newTestPipeline(t, catalog, newMemIndex(), mock.NewMockEmbedder())

		report, err := p.Run(ctx)
		assert.ErrorIs(t, err, core.ErrConnection)
		assert.Nil(t, report)
	})

	t.Run("cancellation between batches returns partial report", func(t *testing.T) {
		companies := makeCompanies(25)
		index := newMemIndex()
		p, rec := newTestPipeline(t, newMemCatalog(companies...), index, mock.NewMockEmbedder())
		rec.err = context.Canceled

		report, err := p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, report)
		assert.Equal(t, 25, report.Total)
		assert.Equal(t, 1, report.Batches)
		assert.Equal(t, 10, report.Processed)
		assert.Equal(t, 10, index.stored())
	})

	t.Run("rerun rebuilds index", func(t *testing.T) {
		companies := makeCompanies(3)
		index := newMemIndex()
		p, _ := newTestPipeline(t, newMemCatalog(companies...), index, mock.NewMockEmbedder())

		_, err := p.Run(ctx)
		require.NoError(t, err)
		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Processed)
		assert.Equal(t, 2, index.initialized)
		assert.Equal(t, 3, index.stored())
	})

	t.Run("writes progress", func(t *testing.T) {
		var buf bytes.Buffer
		p, _ := newTestPipeline(t, newMemCatalog(makeCompanies(12)...), newMemIndex(), mock.NewMockEmbedder(),
			WithProgressWriter(&buf))

		_, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Progress: 12/12 (100.0%)")
	})

	t.Run("rebuilds reindexable index after run", func(t *testing.T) {
		index := &reindexingIndex{memIndex: newMemIndex()}
		p, _ := newTestPipeline(t, newMemCatalog(makeCompanies(12)...), index, mock.NewMockEmbedder())

		_, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, index.reindexed)
		assert.Equal(t, 12, index.storedAtReindex, "rebuild sees every stored vector")
	})

	t.Run("rebuild failure keeps the report", func(t *testing.T) {
		index := &reindexingIndex{memIndex: newMemIndex(), reindexErr: core.ErrConnection}
		p, _ := newTestPipeline(t, newMemCatalog(makeCompanies(3)...), index, mock.NewMockEmbedder())

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Processed)
		assert.Equal(t, 1, index.reindexed)
	})

	t.Run("no rebuild after cancellation", func(t *testing.T) {
		index := &reindexingIndex{memIndex: newMemIndex()}
		p, rec := newTestPipeline(t, newMemCatalog(makeCompanies(25)...), index, mock.NewMockEmbedder())
		rec.err = context.Canceled

		_, err := p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, index.reindexed)
	})

	t.Run("no rebuild when nothing was embedded", func(t *testing.T) {
		index := &reindexingIndex{memIndex: newMemIndex()}
		p, _ := newTestPipeline(t, newMemCatalog(), index, mock.NewMockEmbedder())

		_, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, index.reindexed)
	})
}
