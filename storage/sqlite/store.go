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


package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync/atomic"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/tickerscout/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed catalog and vector index.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

var (
	_ storage.CatalogRepository = (*Store)(nil)
	_ storage.VectorIndex       = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// Open opens (creating if needed) the database file at path, loads the
// sqlite-vec extension and applies the catalog schema.
// path may carry a "file:" scheme.
func Open(path string, opts ...Option) (*Store, error) {
	sqlite_vec.Auto()

	sqlDB, err := sql.Open("sqlite3", storage.SQLitePath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers from the pipeline's workers
	// instead of surfacing SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{
		db:     sqlDB,
		logger: slog.Default().With("component", "sqlite-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	var vecVersion string
	if err := sqlDB.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlite-vec extension not loaded: %w", err)
	}

	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug("opened sqlite store", "path", path, "vec_version", vecVersion)
	return s, nil
}

// Type returns storage.BackendSQLite.
func (s *Store) Type() string {
	return storage.BackendSQLite
}

// Close closes the database. Subsequent calls are no-ops.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) checkOpen(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}
