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
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/poiesic/tickerscout/core"
)

const selfTestTolerance = 1e-5

// Initialize drops and recreates company_embeddings, then checks that
// vec_distance_cosine behaves as cosine distance.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	stmts := []string{
		"DROP TABLE IF EXISTS company_embeddings",
		`CREATE TABLE company_embeddings (
			company_id INTEGER PRIMARY KEY,
			embedding  BLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", core.ErrInitialization, err)
		}
	}
	if err := s.selfTest(ctx); err != nil {
		return err
	}
	s.logger.Info("vector index initialized", "backend", s.Type())
	return nil
}

func (s *Store) selfTest(ctx context.Context) error {
	v, err := sqlite_vec.SerializeFloat32([]float32{1, 2, 3})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInitialization, err)
	}
	neg, err := sqlite_vec.SerializeFloat32([]float32{-1, -2, -3})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInitialization, err)
	}

	var length int
	var same, opposite float64
	err = s.db.QueryRowContext(ctx,
		"SELECT vec_length(?), vec_distance_cosine(?, ?), vec_distance_cosine(?, ?)",
		v, v, v, v, neg).Scan(&length, &same, &opposite)
	if err != nil {
		return fmt.Errorf("%w: self-test query: %w", core.ErrInitialization, err)
	}
	if length != 3 {
		return fmt.Errorf("%w: vec_length returned %d, expected 3", core.ErrInitialization, length)
	}
	if math.Abs(same) > selfTestTolerance || math.Abs(opposite-2) > selfTestTolerance {
		return fmt.Errorf("%w: unexpected cosine distances %f and %f", core.ErrInitialization, same, opposite)
	}
	return nil
}

// Store upserts the vector for companyID.
func (s *Store) Store(ctx context.Context, companyID int64, vector []float32) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if err := core.ValidateVector(vector); err != nil {
		return err
	}
	serialized, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO company_embeddings (company_id, embedding) VALUES (?, ?)
		ON CONFLICT(company_id) DO UPDATE SET embedding = excluded.embedding`, companyID, serialized)
	if err != nil {
		return fmt.Errorf("failed to store embedding for company %d: %w", companyID, err)
	}
	return nil
}

// SearchSimilar returns the k nearest companies by cosine distance.
// Stored zero vectors have no defined distance; they rank last with
// similarity 0.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, k int) ([]core.SimilarityMatch, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if err := core.ValidateVector(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	serialized, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, vec_distance_cosine(embedding, ?) AS distance
		FROM company_embeddings
		ORDER BY distance IS NULL, distance ASC, company_id ASC
		LIMIT ?`, serialized, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []core.SimilarityMatch
	for rows.Next() {
		var id int64
		var distance sql.NullFloat64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		var similarity float32
		if distance.Valid {
			similarity = core.SimilarityFromDistance(distance.Float64)
		}
		matches = append(matches, core.SimilarityMatch{CompanyId: id, Similarity: similarity})
	}
	return matches, rows.Err()
}
