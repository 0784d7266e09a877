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


package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/observability"
	"github.com/poiesic/tickerscout/storage"
)

// CandidateCount is the number of nearest neighbors fetched before
// structured filters are applied on backends without combined search.
const CandidateCount = 1000

// Tier identifies which strategy served a search.
type Tier int

const (
	// TierFilterOnly serves queries without text from the catalog alone.
	TierFilterOnly Tier = iota
	// TierCombined ranks and filters in a single vector index round trip.
	TierCombined
	// TierResolve ranks by vector alone, then resolves ids against the catalog.
	TierResolve
	// TierTextMatch is the substring fallback used when the vector path fails
	// or finds no embedded candidates.
	TierTextMatch
)

func (t Tier) String() string {
	switch t {
	case TierFilterOnly:
		return "filter_only"
	case TierCombined:
		return "combined"
	case TierResolve:
		return "resolve"
	case TierTextMatch:
		return "text_match"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Results is a ranked result list tagged with the tier that produced it.
type Results struct {
	Items []*core.SearchResult
	Tier  Tier
}

// Searcher answers company queries by embedding similarity, structured
// filters, or both, degrading to text matching when the vector path fails.
type Searcher struct {
	catalog  storage.CatalogRepository
	index    storage.VectorIndex
	embedder ai.Embedder
	monitor  SearchMonitor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMonitor installs a monitor used by every Search call.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// NewSearcher creates a new searcher.
// The embedder is typically an ai.CachedEmbedder so repeated queries skip
// the provider.
func NewSearcher(
	catalog storage.CatalogRepository,
	index storage.VectorIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		catalog:  catalog,
		index:    index,
		embedder: embedder,
		monitor:  &noopMonitor{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search runs query against the catalog. A nil or blank query is a pure
// filter listing ordered by market cap. A query the vector path cannot
// answer, by error or by an empty candidate set, is served by text match.
func (s *Searcher) Search(ctx context.Context, query *string, filters core.Filters) (*Results, error) {
	return s.SearchWithMonitor(ctx, query, filters, s.monitor)
}

// SearchWithMonitor is Search with a per-call monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query *string, filters core.Filters, monitor SearchMonitor) (*Results, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	start := time.Now()
	filters = filters.Normalized()

	text := ""
	if query != nil {
		text = strings.TrimSpace(*query)
	}
	monitor.Start(text, filters)

	var (
		results *Results
		err     error
	)
	if text == "" {
		results, err = s.filterOnly(ctx, filters)
	} else {
		results, err = s.vectorSearch(ctx, text, filters, monitor)
		switch {
		case err != nil:
			s.logger.Warn("vector search failed, falling back to text match", "query", text, "err", err)
			monitor.VectorPathFailed(err)
			results, err = s.textMatch(ctx, text, filters)
		case len(results.Items) == 0:
			// Nothing embedded matches; the catalog may still.
			s.logger.Debug("no vector coverage, falling back to text match", "query", text, "tier", results.Tier)
			results, err = s.textMatch(ctx, text, filters)
		}
	}
	if err != nil {
		s.logger.Error("search failed", "query", text, "err", err)
		return nil, err
	}

	tier := results.Tier.String()
	observability.SearchRequestsTotal.WithLabelValues(tier).Inc()
	observability.SearchDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	monitor.TierServed(results.Tier)
	monitor.Finish(results)
	s.logger.Debug("search complete", "query", text, "tier", tier, "results", len(results.Items))

	return results, nil
}

func (s *Searcher) filterOnly(ctx context.Context, filters core.Filters) (*Results, error) {
	companies, err := s.catalog.FindCompanies(ctx, storage.CompanyQuery{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	return &Results{Items: unranked(companies), Tier: TierFilterOnly}, nil
}

// vectorSearch embeds the query and ranks by similarity, preferring the
// combined index operation when the backend offers one.
func (s *Searcher) vectorSearch(ctx context.Context, text string, filters core.Filters, monitor SearchMonitor) (*Results, error) {
	vector, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	monitor.AfterEmbedding(vector)

	if fs, ok := s.index.(storage.FilteredSearcher); ok {
		items, err := fs.SearchSimilarWithFilters(ctx, vector, CandidateCount, filters)
		if err != nil {
			return nil, fmt.Errorf("combined search: %w", err)
		}
		if len(items) > filters.Limit {
			items = items[:filters.Limit]
		}
		return &Results{Items: items, Tier: TierCombined}, nil
	}

	matches, err := s.index.SearchSimilar(ctx, vector, CandidateCount)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(matches) == 0 {
		return &Results{Items: []*core.SearchResult{}, Tier: TierResolve}, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.CompanyId
	}
	companies, err := s.catalog.GetCompanies(ctx, ids, filters)
	if err != nil {
		return nil, fmt.Errorf("resolving matches: %w", err)
	}
	byID := make(map[int64]*core.Company, len(companies))
	for _, c := range companies {
		byID[c.Id] = c
	}

	// Walk matches in index order so ties keep the index's ordering.
	items := make([]*core.SearchResult, 0, len(companies))
	for _, m := range matches {
		c, ok := byID[m.CompanyId]
		if !ok {
			continue
		}
		delete(byID, m.CompanyId)
		items = append(items, &core.SearchResult{Company: c, Similarity: m.Similarity})
	}
	slices.SortStableFunc(items, func(a, b *core.SearchResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
	if len(items) > filters.Limit {
		items = items[:filters.Limit]
	}
	return &Results{Items: items, Tier: TierResolve}, nil
}

func (s *Searcher) textMatch(ctx context.Context, text string, filters core.Filters) (*Results, error) {
	companies, err := s.catalog.FindCompanies(ctx, storage.CompanyQuery{Filters: filters, Contains: text})
	if err != nil {
		return nil, errors.Join(ErrSearchUnavailable, fmt.Errorf("text match: %w", err))
	}
	return &Results{Items: unranked(companies), Tier: TierTextMatch}, nil
}

func unranked(companies []*core.Company) []*core.SearchResult {
	items := make([]*core.SearchResult, len(companies))
	for i, c := range companies {
		items[i] = &core.SearchResult{Company: c}
	}
	return items
}
