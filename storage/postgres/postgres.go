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


// Package postgres implements the company catalog and the vector index on
// PostgreSQL with the pgvector extension.
//
// It uses pgx/v5 for connection pooling and pgvector-go for the vector
// type codec. One Store serves storage.CatalogRepository,
// storage.VectorIndex and storage.FilteredSearcher.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/storage"
)

// Store is a PostgreSQL-backed catalog and vector index.
type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *slog.Logger
	closed atomic.Bool
}

// Ensure Store implements the storage interfaces at compile time.
var (
	_ storage.CatalogRepository = (*Store)(nil)
	_ storage.VectorIndex       = (*Store)(nil)
	_ storage.FilteredSearcher  = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// The vector extension is created before the pool opens so that every
// pooled connection can register the pgvector types.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if enforceTLS(poolCfg.ConnConfig, cfg.DSN) {
		cfg.Logger.Debug("requiring TLS for remote database", "host", poolCfg.ConnConfig.Host)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	if err := ensureExtension(ctx, poolCfg.ConnConfig.Copy()); err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify(fmt.Errorf("connecting to database: %w", err))
	}

	s := &Store{
		pool:   pool,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "postgres-store"),
	}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

func ensureExtension(ctx context.Context, connCfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return classify(fmt.Errorf("connecting to database: %w", err))
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: creating vector extension: %w", core.ErrInitialization, err)
	}
	return nil
}

// Type returns storage.BackendPostgres.
func (s *Store) Type() string {
	return storage.BackendPostgres
}

// Close closes the connection pool. Subsequent calls are no-ops.
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
	return nil
}

// acquire checks out a pooled connection, waiting at most AcquireTimeout.
func (s *Store) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	conn, err := s.pool.Acquire(actx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: acquiring connection: %w", core.ErrConnection, err)
	}
	return conn, nil
}

// classify tags unreachable-server and timeout failures with core.ErrConnection.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrConnection, err)
	}
	return err
}
