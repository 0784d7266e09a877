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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/observability"
	"github.com/poiesic/tickerscout/storage"
)

// BatchResult counts the outcomes of one batch.
type BatchResult struct {
	Processed int
	Failed    int
}

// BatchProcessor embeds and stores one batch of companies concurrently.
type BatchProcessor struct {
	catalog        storage.CatalogRepository
	index          storage.VectorIndex
	embedder       ai.Embedder
	pool           *ants.Pool
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// pool: worker pool the per-company tasks run on
// maxAttempts: maximum number of attempts for each embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(
	catalog storage.CatalogRepository,
	index storage.VectorIndex,
	embedder ai.Embedder,
	pool *ants.Pool,
	maxAttempts int,
	retryBaseDelay time.Duration,
	logger *slog.Logger,
) *BatchProcessor {
	return &BatchProcessor{
		catalog:        catalog,
		index:          index,
		embedder:       embedder,
		pool:           pool,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process runs one task per company and waits for all of them. A failing
// company is logged and counted; it never cancels its siblings.
func (bp *BatchProcessor) Process(ctx context.Context, companies []*core.Company) BatchResult {
	var processed, failed atomic.Int64
	var wg sync.WaitGroup

	for _, company := range companies {
		wg.Add(1)
		err := bp.pool.Submit(func() {
			defer wg.Done()
			if err := bp.processOne(ctx, company); err != nil {
				failed.Add(1)
				observability.EmbeddingsTotal.WithLabelValues("failed").Inc()
				bp.logger.Error("failed to embed company", "symbol", company.Symbol, "id", company.Id, "err", err)
				return
			}
			processed.Add(1)
			observability.EmbeddingsTotal.WithLabelValues("ok").Inc()
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			observability.EmbeddingsTotal.WithLabelValues("failed").Inc()
			bp.logger.Error("failed to schedule company", "symbol", company.Symbol, "id", company.Id, "err", err)
		}
	}

	wg.Wait()
	return BatchResult{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	}
}

// processOne embeds the summary, stores the vector, then mirrors it into
// the catalog. Only the provider call is retried.
func (bp *BatchProcessor) processOne(ctx context.Context, company *core.Company) error {
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vector, err = bp.embedder.EmbedText(ctx, company.Summary())
		return err
	}, bp.maxAttempts, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("generating embedding: %w", err)
	}

	if err := bp.index.Store(ctx, company.Id, vector); err != nil {
		return fmt.Errorf("storing vector: %w", err)
	}

	if err := bp.catalog.UpdateEmbedding(ctx, company.Id, storage.MarshalVector(vector)); err != nil {
		return fmt.Errorf("updating catalog: %w", err)
	}

	bp.logger.Debug("embedded company", "symbol", company.Symbol, "id", company.Id)
	return nil
}
