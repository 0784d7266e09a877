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


package storage

import (
	"context"

	"github.com/poiesic/tickerscout/core"
)

// Backend names returned by VectorIndex.Type and BackendFor.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// CompanyQuery describes a filtered catalog read.
type CompanyQuery struct {
	Filters core.Filters

	// Contains, when non-empty, keeps only companies whose short name, long
	// name, sector, industry or business summary contains it (case-sensitive).
	Contains string
}

// CatalogRepository provides read access to the company catalog and the
// pipeline's write-back of embedding state.
// Implementations must be thread-safe and support concurrent access.
type CatalogRepository interface {
	// FindCompaniesNeedingEmbedding returns every company with a non-null
	// business summary, ordered by id.
	FindCompaniesNeedingEmbedding(ctx context.Context) ([]*core.Company, error)

	// UpdateEmbedding stores the durable mirror blob and sets the
	// has-embedding flag. Returns ErrNotFound if the company doesn't exist.
	UpdateEmbedding(ctx context.Context, id int64, blob []byte) error

	// FindCompanies returns companies matching the query, ordered by market
	// cap descending with missing market caps last, then by id.
	// At most Filters.Limit companies are returned.
	FindCompanies(ctx context.Context, query CompanyQuery) ([]*core.Company, error)

	// GetCompanies returns the companies among ids that satisfy the
	// filters. Missing ids are skipped. Order is unspecified and the limit
	// is ignored.
	GetCompanies(ctx context.Context, ids []int64, filters core.Filters) ([]*core.Company, error)

	// AddCompanies inserts or replaces catalog entries.
	AddCompanies(ctx context.Context, companies ...*core.Company) error

	// Sectors returns the distinct non-empty sectors in ascending order.
	Sectors(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// VectorIndex stores one embedding per company and answers cosine
// nearest-neighbor queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Initialize drops and recreates the vector structures, then verifies
	// the native cosine distance primitive. Every stored vector is lost.
	Initialize(ctx context.Context) error

	// Store upserts the vector for companyID.
	Store(ctx context.Context, companyID int64, vector []float32) error

	// SearchSimilar returns up to k matches ordered by descending
	// similarity, ties broken by ascending company id.
	SearchSimilar(ctx context.Context, query []float32, k int) ([]core.SimilarityMatch, error)

	// Type returns the backend name.
	Type() string

	// Close releases resources.
	Close() error
}

// FilteredSearcher is implemented by indexes that can join vector distance
// with catalog filters in one query.
type FilteredSearcher interface {
	// SearchSimilarWithFilters returns up to filters.Limit companies that
	// satisfy filters, ordered by descending similarity.
	SearchSimilarWithFilters(ctx context.Context, query []float32, k int, filters core.Filters) ([]*core.SearchResult, error)
}

// Reindexer is implemented by indexes whose search structures are trained
// on the vectors present when they are built. Reindex rebuilds them over
// the current contents.
type Reindexer interface {
	Reindex(ctx context.Context) error
}
