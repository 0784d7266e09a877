// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package embedding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/observability"
	"github.com/poiesic/tickerscout/storage"
)

const (
	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = time.Second

	// DefaultMaxAttempts disables retries.
	DefaultMaxAttempts = 1

	// DefaultRetryBaseDelay is the first backoff delay when retries are enabled.
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Report summarizes a pipeline run.
type Report struct {
	Total     int
	Processed int
	Failed    int
	Batches   int
	Elapsed   time.Duration
}

// String renders the report as a one-line summary.
func (r *Report) String() string {
	return fmt.Sprintf("embedded %d/%d companies (%d failed) in %d batches, %s",
		r.Processed, r.Total, r.Failed, r.Batches, r.Elapsed.Round(time.Millisecond))
}

// Pipeline regenerates the embedding of every company that has a business
// summary. Companies within a batch run concurrently; batches run one after
// another with a fixed delay between them to stay under provider rate limits.
type Pipeline struct {
	catalog        storage.CatalogRepository
	index          storage.VectorIndex
	embedder       ai.Embedder
	pool           *ants.Pool
	batchSize      int
	batchDelay     time.Duration
	maxAttempts    int
	retryBaseDelay time.Duration
	progress       io.Writer
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets how many companies are embedded concurrently.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}
		p.batchSize = size
		return nil
	}
}

// WithBatchDelay sets the pause between batches. Default is DefaultBatchDelay.
func WithBatchDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("batch delay must be non-negative, got %s", d)
		}
		p.batchDelay = d
		return nil
	}
}

// WithMaxAttempts bounds attempts per embedding call. Default is 1 (no retry).
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = n
		return nil
	}
}

// WithRetryBaseDelay sets the first backoff delay. Default is DefaultRetryBaseDelay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.retryBaseDelay = d
		return nil
	}
}

// WithProgressWriter enables progress output to w.
func WithProgressWriter(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new embedding pipeline.
func NewPipeline(
	catalog storage.CatalogRepository,
	index storage.VectorIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		catalog:        catalog,
		index:          index,
		embedder:       provider.Embedder(),
		batchSize:      DefaultBatchSize,
		batchDelay:     DefaultBatchDelay,
		maxAttempts:    DefaultMaxAttempts,
		retryBaseDelay: DefaultRetryBaseDelay,
		sleep:          sleepContext,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "embedding-pipeline")

	// One worker per company in a batch.
	pool, err := ants.NewPool(p.batchSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Run resets the vector index and embeds every company with a summary.
// Index initialization and catalog reads abort the run; per-company
// failures are counted in the report. Indexes that implement
// storage.Reindexer are rebuilt once a run completes. When ctx is cancelled between
// batches, the report so far is returned with ctx's error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	p.logger.Info("initializing vector index", "backend", p.index.Type())
	if err := p.index.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing vector index: %w", err)
	}

	companies, err := p.catalog.FindCompaniesNeedingEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading companies: %w", err)
	}

	report := &Report{Total: len(companies)}
	p.logger.Info("found companies to embed", "count", report.Total, "batchSize", p.batchSize)

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, report.Total, p.batchSize)
		tracker.Start()
		defer tracker.Finish()
	}

	processor := NewBatchProcessor(p.catalog, p.index, p.embedder, p.pool,
		p.maxAttempts, p.retryBaseDelay, p.logger)

	it := NewBatchIterator(companies, p.batchSize)
	for batch, ok := it.Next(); ok; batch, ok = it.Next() {
		report.Batches++
		batchStart := time.Now()
		result := processor.Process(ctx, batch)
		observability.BatchDuration.Observe(time.Since(batchStart).Seconds())

		report.Processed += result.Processed
		report.Failed += result.Failed
		if tracker != nil {
			tracker.Increment(len(batch), result.Failed)
		}
		p.logger.Debug("batch complete", "batch", report.Batches, "of", it.Batches(),
			"processed", result.Processed, "failed", result.Failed)

		if it.HasMore() {
			if err := p.sleep(ctx, p.batchDelay); err != nil {
				report.Elapsed = time.Since(start)
				return report, err
			}
		}
	}

	// ANN structures built over the empty table at Initialize are trained
	// on nothing; rebuild them now that the vectors are in place.
	if r, ok := p.index.(storage.Reindexer); ok && report.Processed > 0 {
		if err := r.Reindex(ctx); err != nil {
			p.logger.Warn("rebuilding vector index failed", "backend", p.index.Type(), "err", err)
		}
	}

	report.Elapsed = time.Since(start)
	p.logger.Info("embedding run complete",
		"total", report.Total,
		"processed", report.Processed,
		"failed", report.Failed,
		"batches", report.Batches,
		"elapsed", report.Elapsed)
	return report, nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
