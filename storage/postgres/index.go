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
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/poiesic/tickerscout/core"
)

const (
	// ivfflatLists is the number of inverted lists in the ANN index.
	ivfflatLists = 100

	selfTestTolerance = 1e-6
)

// Initialize drops and recreates company_embeddings with its ivfflat
// index, then checks that <=> behaves as cosine distance.
func (s *Store) Initialize(ctx context.Context) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"DROP TABLE IF EXISTS company_embeddings",
		fmt.Sprintf(`CREATE TABLE company_embeddings (
			company_id BIGINT PRIMARY KEY,
			embedding  vector(%d) NOT NULL
		)`, core.Dimensions),
		fmt.Sprintf(`CREATE INDEX company_embeddings_embedding_idx ON company_embeddings
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, ivfflatLists),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", core.ErrInitialization, classify(err))
		}
	}

	var same, opposite float64
	err = conn.QueryRow(ctx, `SELECT '[1,2,3]'::vector <=> '[1,2,3]'::vector,
		'[1,2,3]'::vector <=> '[-1,-2,-3]'::vector`).Scan(&same, &opposite)
	if err != nil {
		return fmt.Errorf("%w: self-test query: %w", core.ErrInitialization, err)
	}
	if math.Abs(same) > selfTestTolerance || math.Abs(opposite-2) > selfTestTolerance {
		return fmt.Errorf("%w: unexpected cosine distances %f and %f", core.ErrInitialization, same, opposite)
	}

	s.logger.Info("vector index initialized", "backend", s.Type())
	return nil
}

// Store upserts the vector for companyID.
func (s *Store) Store(ctx context.Context, companyID int64, vector []float32) error {
	if err := core.ValidateVector(vector); err != nil {
		return err
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO company_embeddings (company_id, embedding) VALUES ($1, $2)
		ON CONFLICT (company_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		companyID, pgvector.NewVector(vector))
	if err != nil {
		return classify(fmt.Errorf("storing embedding for company %d: %w", companyID, err))
	}
	return nil
}

// Reindex rebuilds the ivfflat index so its lists are trained on the
// stored vectors rather than on the empty table Initialize created.
func (s *Store) Reindex(ctx context.Context) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "REINDEX INDEX company_embeddings_embedding_idx"); err != nil {
		return classify(fmt.Errorf("rebuilding vector index: %w", err))
	}
	s.logger.Info("vector index rebuilt", "backend", s.Type())
	return nil
}

// annSearch runs fn in a transaction scanning cfg.Probes ivfflat lists.
// With the default of every list, results are exact regardless of how the
// lists were trained.
func (s *Store) annSearch(ctx context.Context, fn func(tx pgx.Tx) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", s.cfg.Probes)); err != nil {
		return fmt.Errorf("configuring probes: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SearchSimilar returns the k nearest companies by cosine distance.
// Stored zero vectors have no defined distance; they rank last with
// similarity 0.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, k int) ([]core.SimilarityMatch, error) {
	if err := core.ValidateVector(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var matches []core.SimilarityMatch
	err := s.annSearch(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT company_id, embedding <=> $1 AS distance
			FROM company_embeddings
			ORDER BY distance ASC, company_id ASC
			LIMIT $2`, pgvector.NewVector(query), k)
		if err != nil {
			return classify(fmt.Errorf("searching embeddings: %w", err))
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			var distance float64
			if err := rows.Scan(&id, &distance); err != nil {
				return err
			}
			matches = append(matches, core.SimilarityMatch{
				CompanyId:  id,
				Similarity: core.SimilarityFromDistance(distance),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// SearchSimilarWithFilters joins vector distance with the catalog filters
// in one statement. At most min(k, filters.Limit) results are returned.
func (s *Store) SearchSimilarWithFilters(ctx context.Context, query []float32, k int, filters core.Filters) ([]*core.SearchResult, error) {
	if err := core.ValidateVector(query); err != nil {
		return nil, err
	}
	f := filters.Normalized()
	limit := f.Limit
	if k > 0 && k < limit {
		limit = k
	}

	var q queryBuilder
	vec := q.arg(pgvector.NewVector(query))
	q.filters(f)
	stmt := "SELECT " + companyColumns + ", e.embedding <=> " + vec + " AS distance" +
		" FROM company_embeddings e JOIN companies c ON c.id = e.company_id" + q.where() +
		" ORDER BY distance ASC, c.id ASC LIMIT " + q.arg(limit)

	var results []*core.SearchResult
	err := s.annSearch(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stmt, q.args...)
		if err != nil {
			return classify(fmt.Errorf("searching embeddings: %w", err))
		}
		defer rows.Close()

		for rows.Next() {
			c := &core.Company{}
			var distance float64
			if err := rows.Scan(append(companyDest(c), &distance)...); err != nil {
				return fmt.Errorf("scanning company: %w", err)
			}
			results = append(results, &core.SearchResult{
				Company:    c,
				Similarity: core.SimilarityFromDistance(distance),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
