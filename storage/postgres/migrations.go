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


package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockKey is the pg_advisory_lock key held while migrating, so
// processes starting against the same database apply each version once.
const migrationLockKey int64 = 0x7469636b73636f75

// migration is one embedded schema step, named NNN_description.sql.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads every .sql file in fsys and returns them in version
// order. A file whose name has no numeric version prefix, or a version
// used twice, is an error rather than silently skipped.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string, len(names))
	migrations := make([]migration, 0, len(names))
	for _, file := range names {
		prefix, name, ok := strings.Cut(strings.TrimSuffix(path.Base(file), ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 || name == "" {
			return nil, fmt.Errorf("migration %q: name must be NNN_description.sql", file)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %q and %q", version, prev, file)
		}
		seen[version] = file

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading migration %q: %w", file, err)
		}
		migrations = append(migrations, migration{version: version, name: name, sql: string(content)})
	}

	slices.SortFunc(migrations, func(a, b migration) int { return a.version - b.version })
	return migrations, nil
}

func embeddedMigrations() ([]migration, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return loadMigrations(sub)
}

// migrate brings the catalog schema up to date. Each pending version runs
// in its own transaction together with its schema_migrations row, so a
// failed step leaves neither partial DDL nor a bogus record behind.
func (s *Store) migrate(ctx context.Context) error {
	migrations, err := embeddedMigrations()
	if err != nil {
		return err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return classify(fmt.Errorf("taking migration lock: %w", err))
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			s.logger.Warn("releasing migration lock", "err", err)
		}
	}()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		s.logger.Info("applying migration", "version", m.version, "name", m.name)
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name)
			return err
		})
		if err != nil {
			return classify(fmt.Errorf("applying migration %03d_%s: %w", m.version, m.name, err))
		}
	}
	return nil
}

// appliedVersions returns the recorded versions, or none on a database
// that has never been migrated.
func appliedVersions(ctx context.Context, conn *pgxpool.Conn) (map[int]bool, error) {
	var tracked bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass('schema_migrations') IS NOT NULL").Scan(&tracked); err != nil {
		return nil, classify(fmt.Errorf("checking schema_migrations: %w", err))
	}
	applied := make(map[int]bool)
	if !tracked {
		return applied, nil
	}

	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, classify(fmt.Errorf("reading schema_migrations: %w", err))
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
