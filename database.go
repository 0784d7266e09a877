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


package tickerscout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/ai/openai"
	"github.com/poiesic/tickerscout/embedding"
	"github.com/poiesic/tickerscout/search"
	"github.com/poiesic/tickerscout/storage"
	"github.com/poiesic/tickerscout/storage/badger"
	"github.com/poiesic/tickerscout/storage/postgres"
	"github.com/poiesic/tickerscout/storage/sqlite"
)

// ErrProviderNotConfigured is returned by operations that need embeddings
// when the database was opened without an AI provider.
var ErrProviderNotConfigured = errors.New("AI provider not configured")

// store is what both storage backends provide.
type store interface {
	storage.CatalogRepository
	storage.VectorIndex
}

// Database owns one catalog, one vector index, the AI provider and the
// optional query-embedding cache for the lifetime of a process.
type Database struct {
	store        store
	provider     ai.AIProvider
	embedder     ai.Embedder
	cacheBackend *badger.Backend
	logger       *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	cacheDir    string
	memoryCache bool
	cacheTTL    time.Duration
	pgConfig    postgres.Config
	logger      *slog.Logger
}

// WithAIConfig creates an OpenAI-compatible provider from cfg.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an already constructed provider. The Database takes
// ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithCacheDir caches query embeddings in a badger database under dir.
func WithCacheDir(dir string) DatabaseOption {
	return func(o *databaseOptions) {
		o.cacheDir = dir
	}
}

// WithMemoryCache caches query embeddings in memory for the life of the
// Database.
func WithMemoryCache() DatabaseOption {
	return func(o *databaseOptions) {
		o.memoryCache = true
	}
}

// WithCacheTTL overrides how long cached query embeddings live.
func WithCacheTTL(ttl time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.cacheTTL = ttl
	}
}

// WithPostgresConfig sets pool tuning for postgres DSNs. The DSN field is
// ignored and migrations always run on open.
func WithPostgresConfig(cfg postgres.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.pgConfig = cfg
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open connects to the catalog named by dsn, selecting SQLite or
// PostgreSQL with storage.BackendFor.
func Open(ctx context.Context, dsn string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := storage.BackendFor(dsn)
	if err != nil {
		return nil, err
	}

	db := &Database{
		logger: options.logger.With("component", "database"),
	}

	switch backend {
	case storage.BackendSQLite:
		db.store, err = sqlite.Open(dsn, sqlite.WithLogger(options.logger))
	case storage.BackendPostgres:
		cfg := options.pgConfig
		cfg.DSN = dsn
		cfg.MigrateOnStart = true
		if cfg.Logger == nil {
			cfg.Logger = options.logger
		}
		db.store, err = postgres.New(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	db.logger.Debug("opened catalog", "backend", backend)

	provider := options.provider
	if provider == nil && options.aiConfig != nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			db.store.Close()
			return nil, err
		}
	}
	db.provider = provider
	if provider == nil {
		return db, nil
	}
	db.embedder = provider.Embedder()

	if options.cacheDir == "" && !options.memoryCache {
		return db, nil
	}
	db.cacheBackend, err = badger.OpenBackend(options.cacheDir, options.memoryCache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}
	var cacheOpts []badger.CacheOption
	if options.cacheTTL > 0 {
		cacheOpts = append(cacheOpts, badger.WithTTL(options.cacheTTL))
	}
	cache, err := badger.NewEmbeddingCache(db.cacheBackend, cacheOpts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	model := ai.DefaultEmbeddingModel
	if options.aiConfig != nil && options.aiConfig.EmbeddingModel != "" {
		model = options.aiConfig.EmbeddingModel
	}
	db.embedder = ai.NewCachedEmbedder(db.embedder, cache, model)

	return db, nil
}

// Close releases the provider, the cache and the store. It reports every
// failure.
func (db *Database) Close() error {
	var errs []error

	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}

	if db.cacheBackend != nil {
		if err := db.cacheBackend.Close(); err != nil {
			db.logger.Error("error closing embedding cache", "err", err)
			errs = append(errs, err)
		}
	}

	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Backend returns the storage backend name.
func (db *Database) Backend() string {
	return db.store.Type()
}

// Catalog returns the company catalog backing this database.
func (db *Database) Catalog() storage.CatalogRepository {
	return db.store
}

// Index returns the vector index. It shares the catalog's storage.
func (db *Database) Index() storage.VectorIndex {
	return db.store
}

// NewEmbeddingPipeline creates a pipeline over this database's catalog,
// index and provider. Returns ErrProviderNotConfigured when the database
// was opened without one. The caller must Release the pipeline.
func (db *Database) NewEmbeddingPipeline(opts ...embedding.Option) (*embedding.Pipeline, error) {
	if db.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	return embedding.NewPipeline(db.store, db.store, db.provider, opts...)
}

// NewSearcher creates a searcher that embeds queries through the cache
// when one is configured.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	if db.embedder == nil {
		return nil, ErrProviderNotConfigured
	}
	return search.NewSearcher(db.store, db.store, db.embedder, opts...)
}
