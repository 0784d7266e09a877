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
	"strings"

	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/storage"
)

const companyColumns = `c.id, c.exchange, c.symbol, c.short_name, c.long_name, c.sector, c.industry,
	c.current_price, c.market_cap, c.ebitda, c.revenue_growth, c.city, c.state, c.country,
	c.full_time_employees, c.long_business_summary, c.weight, c.has_embedding, c.embedding`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*core.Company, error) {
	c := &core.Company{}
	err := row.Scan(
		&c.Id, &c.Exchange, &c.Symbol, &c.ShortName, &c.LongName, &c.Sector, &c.Industry,
		&c.CurrentPrice, &c.MarketCap, &c.Ebitda, &c.RevenueGrowth, &c.City, &c.State, &c.Country,
		&c.FullTimeEmployees, &c.LongBusinessSummary, &c.Weight, &c.HasEmbedding, &c.Embedding,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func collectCompanies(rows *sql.Rows) ([]*core.Company, error) {
	defer rows.Close()
	var companies []*core.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// filterClause renders the sector and market cap constraints as SQL
// conditions over the companies table aliased as c.
func filterClause(f core.Filters) ([]string, []any) {
	var conds []string
	var args []any
	if f.Sector != "" {
		conds = append(conds, "c.sector = ?")
		args = append(args, f.Sector)
	}
	if f.MinMarketCap != nil {
		conds = append(conds, "c.market_cap >= ?")
		args = append(args, *f.MinMarketCap)
	}
	if f.MaxMarketCap != nil {
		conds = append(conds, "c.market_cap <= ?")
		args = append(args, *f.MaxMarketCap)
	}
	return conds, args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// FindCompaniesNeedingEmbedding returns companies with a business summary.
func (s *Store) FindCompaniesNeedingEmbedding(ctx context.Context) ([]*core.Company, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+companyColumns+" FROM companies c WHERE c.long_business_summary IS NOT NULL ORDER BY c.id")
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	return collectCompanies(rows)
}

// UpdateEmbedding writes the mirror blob and marks the company embedded.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, blob []byte) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE companies SET embedding = ?, has_embedding = 1 WHERE id = ?", blob, id)
	if err != nil {
		return fmt.Errorf("failed to update embedding for company %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: company %d", storage.ErrNotFound, id)
	}
	return nil
}

// FindCompanies returns companies matching query by market cap descending.
func (s *Store) FindCompanies(ctx context.Context, query storage.CompanyQuery) ([]*core.Company, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	f := query.Filters.Normalized()
	conds, args := filterClause(f)
	if query.Contains != "" {
		conds = append(conds, `(instr(c.short_name, ?) > 0 OR instr(c.long_name, ?) > 0
			OR instr(c.sector, ?) > 0 OR instr(c.industry, ?) > 0
			OR instr(COALESCE(c.long_business_summary, ''), ?) > 0)`)
		for range 5 {
			args = append(args, query.Contains)
		}
	}
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+companyColumns+" FROM companies c"+where(conds)+
			" ORDER BY c.market_cap DESC NULLS LAST, c.id ASC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	return collectCompanies(rows)
}

// GetCompanies returns the companies among ids that satisfy filters.
func (s *Store) GetCompanies(ctx context.Context, ids []int64, filters core.Filters) ([]*core.Company, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	conds, args := filterClause(filters)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	conds = append(conds, "c.id IN ("+placeholders+")")
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+" FROM companies c"+where(conds), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	return collectCompanies(rows)
}

// AddCompanies inserts or replaces catalog entries in one transaction.
func (s *Store) AddCompanies(ctx context.Context, companies ...*core.Company) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO companies (
		id, exchange, symbol, short_name, long_name, sector, industry,
		current_price, market_cap, ebitda, revenue_growth, city, state, country,
		full_time_employees, long_business_summary, weight, has_embedding, embedding
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range companies {
		_, err := stmt.ExecContext(ctx,
			c.Id, c.Exchange, c.Symbol, c.ShortName, c.LongName, c.Sector, c.Industry,
			c.CurrentPrice, c.MarketCap, c.Ebitda, c.RevenueGrowth, c.City, c.State, c.Country,
			c.FullTimeEmployees, c.LongBusinessSummary, c.Weight, c.HasEmbedding, c.Embedding,
		)
		if err != nil {
			return fmt.Errorf("failed to insert company %d: %w", c.Id, err)
		}
	}
	return tx.Commit()
}

// Sectors returns distinct non-empty sectors in ascending order.
func (s *Store) Sectors(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT sector FROM companies WHERE sector <> '' ORDER BY sector ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	defer rows.Close()

	var sectors []string
	for rows.Next() {
		var sector string
		if err := rows.Scan(&sector); err != nil {
			return nil, err
		}
		sectors = append(sectors, sector)
	}
	return sectors, rows.Err()
}
