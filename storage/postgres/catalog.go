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
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/storage"
)

const companyColumns = `c.id, c.exchange, c.symbol, c.short_name, c.long_name, c.sector, c.industry,
	c.current_price, c.market_cap, c.ebitda, c.revenue_growth, c.city, c.state, c.country,
	c.full_time_employees, c.long_business_summary, c.weight, c.has_embedding, c.embedding`

func companyDest(c *core.Company) []any {
	return []any{
		&c.Id, &c.Exchange, &c.Symbol, &c.ShortName, &c.LongName, &c.Sector, &c.Industry,
		&c.CurrentPrice, &c.MarketCap, &c.Ebitda, &c.RevenueGrowth, &c.City, &c.State, &c.Country,
		&c.FullTimeEmployees, &c.LongBusinessSummary, &c.Weight, &c.HasEmbedding, &c.Embedding,
	}
}

func collectCompanies(rows pgx.Rows) ([]*core.Company, error) {
	defer rows.Close()
	var companies []*core.Company
	for rows.Next() {
		c := &core.Company{}
		if err := rows.Scan(companyDest(c)...); err != nil {
			return nil, fmt.Errorf("scanning company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// queryBuilder accumulates WHERE conditions with numbered placeholders.
type queryBuilder struct {
	conds []string
	args  []any
}

func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *queryBuilder) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

func (q *queryBuilder) filters(f core.Filters) {
	if f.Sector != "" {
		q.conds = append(q.conds, "c.sector = "+q.arg(f.Sector))
	}
	if f.MinMarketCap != nil {
		q.conds = append(q.conds, "c.market_cap >= "+q.arg(*f.MinMarketCap))
	}
	if f.MaxMarketCap != nil {
		q.conds = append(q.conds, "c.market_cap <= "+q.arg(*f.MaxMarketCap))
	}
}

// FindCompaniesNeedingEmbedding returns companies with a business summary.
func (s *Store) FindCompaniesNeedingEmbedding(ctx context.Context) ([]*core.Company, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx,
		"SELECT "+companyColumns+" FROM companies c WHERE c.long_business_summary IS NOT NULL ORDER BY c.id")
	if err != nil {
		return nil, classify(fmt.Errorf("querying companies: %w", err))
	}
	return collectCompanies(rows)
}

// UpdateEmbedding writes the mirror blob and marks the company embedded.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, blob []byte) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx,
		"UPDATE companies SET embedding = $1, has_embedding = TRUE WHERE id = $2", blob, id)
	if err != nil {
		return classify(fmt.Errorf("updating embedding for company %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: company %d", storage.ErrNotFound, id)
	}
	return nil
}

// FindCompanies returns companies matching query by market cap descending.
func (s *Store) FindCompanies(ctx context.Context, query storage.CompanyQuery) ([]*core.Company, error) {
	f := query.Filters.Normalized()
	var q queryBuilder
	q.filters(f)
	if query.Contains != "" {
		p := q.arg(query.Contains)
		q.conds = append(q.conds, fmt.Sprintf(`(strpos(c.short_name, %[1]s) > 0 OR strpos(c.long_name, %[1]s) > 0
			OR strpos(c.sector, %[1]s) > 0 OR strpos(c.industry, %[1]s) > 0
			OR strpos(COALESCE(c.long_business_summary, ''), %[1]s) > 0)`, p))
	}
	stmt := "SELECT " + companyColumns + " FROM companies c" + q.where() +
		" ORDER BY c.market_cap DESC NULLS LAST, c.id ASC LIMIT " + q.arg(f.Limit)

	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, stmt, q.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying companies: %w", err))
	}
	return collectCompanies(rows)
}

// GetCompanies returns the companies among ids that satisfy filters.
func (s *Store) GetCompanies(ctx context.Context, ids []int64, filters core.Filters) ([]*core.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var q queryBuilder
	q.filters(filters)
	q.conds = append(q.conds, "c.id = ANY("+q.arg(ids)+")")

	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, "SELECT "+companyColumns+" FROM companies c"+q.where(), q.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying companies: %w", err))
	}
	return collectCompanies(rows)
}

// AddCompanies inserts or replaces catalog entries in one batch.
func (s *Store) AddCompanies(ctx context.Context, companies ...*core.Company) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(`
			INSERT INTO companies (
				id, exchange, symbol, short_name, long_name, sector, industry,
				current_price, market_cap, ebitda, revenue_growth, city, state, country,
				full_time_employees, long_business_summary, weight, has_embedding, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (id) DO UPDATE SET
				exchange = EXCLUDED.exchange, symbol = EXCLUDED.symbol,
				short_name = EXCLUDED.short_name, long_name = EXCLUDED.long_name,
				sector = EXCLUDED.sector, industry = EXCLUDED.industry,
				current_price = EXCLUDED.current_price, market_cap = EXCLUDED.market_cap,
				ebitda = EXCLUDED.ebitda, revenue_growth = EXCLUDED.revenue_growth,
				city = EXCLUDED.city, state = EXCLUDED.state, country = EXCLUDED.country,
				full_time_employees = EXCLUDED.full_time_employees,
				long_business_summary = EXCLUDED.long_business_summary, weight = EXCLUDED.weight,
				has_embedding = EXCLUDED.has_embedding, embedding = EXCLUDED.embedding`,
			c.Id, c.Exchange, c.Symbol, c.ShortName, c.LongName, c.Sector, c.Industry,
			c.CurrentPrice, c.MarketCap, c.Ebitda, c.RevenueGrowth, c.City, c.State, c.Country,
			c.FullTimeEmployees, c.LongBusinessSummary, c.Weight, c.HasEmbedding, c.Embedding,
		)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting companies: %w", err)
	}
	return tx.Commit(ctx)
}

// Sectors returns distinct non-empty sectors in ascending order.
func (s *Store) Sectors(ctx context.Context) ([]string, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx,
		"SELECT DISTINCT sector FROM companies WHERE sector <> '' ORDER BY sector ASC")
	if err != nil {
		return nil, classify(fmt.Errorf("querying sectors: %w", err))
	}
	sectors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning sectors: %w", err)
	}
	return sectors, nil
}
