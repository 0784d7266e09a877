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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/storage"
)

// EmbeddingCache stores query vectors keyed by model and trimmed text.
type EmbeddingCache struct {
	backend *Backend
	ttl     time.Duration
	logger  *slog.Logger
}

var _ ai.EmbeddingCache = (*EmbeddingCache)(nil)

// CacheOption configures an EmbeddingCache.
type CacheOption func(*EmbeddingCache) error

// WithTTL expires entries after ttl. Zero keeps entries forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *EmbeddingCache) error {
		if ttl < 0 {
			return fmt.Errorf("ttl must be non-negative, got %s", ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// WithCacheLogger sets a custom logger for the cache.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *EmbeddingCache) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// NewEmbeddingCache creates a cache over an open backend.
func NewEmbeddingCache(backend *Backend, opts ...CacheOption) (*EmbeddingCache, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	c := &EmbeddingCache{
		backend: backend,
		logger:  slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the cached vector for model and text.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	if c.backend.IsClosed() {
		return nil, false, storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	key := makeQueryEmbeddingKey(model, strings.TrimSpace(text))
	var vector []float32
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			vector, err = storage.UnmarshalEmbedding(val)
			return err
		})
	}, false)

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached embedding: %w", err)
	}
	return vector, true, nil
}

// Put stores vector for model and text.
func (c *EmbeddingCache) Put(ctx context.Context, model, text string, vector []float32) error {
	if c.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := makeQueryEmbeddingKey(model, strings.TrimSpace(text))
	entry := badger.NewEntry(key, storage.MarshalVector(vector))
	if c.ttl > 0 {
		entry = entry.WithTTL(c.ttl)
	}
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		return tx.SetEntry(entry)
	}, true)
	if err != nil {
		return fmt.Errorf("writing cached embedding: %w", err)
	}
	c.logger.Debug("cached query embedding", "model", model, "bytes", len(vector)*4)
	return nil
}
