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

package core

// Dimensions is the fixed length of every embedding vector
// (text-embedding-3-small).
const Dimensions = 1536

// DefaultLimit is the number of results returned when a query does not
// specify a limit.
const DefaultLimit = 50

// Company is a single catalog entry.
// Business attributes are immutable; HasEmbedding and Embedding are written
// by the embedding pipeline.
type Company struct {
	Id                  int64
	Exchange            string
	Symbol              string
	ShortName           string
	LongName            string
	Sector              string
	Industry            string
	CurrentPrice        *float64
	MarketCap           *float64
	Ebitda              *float64
	RevenueGrowth       *float64
	City                *string
	State               *string
	Country             *string
	FullTimeEmployees   *int64
	LongBusinessSummary *string // nil when the catalog has no summary
	Weight              *float64
	HasEmbedding        bool
	Embedding           []byte // durable mirror of the vector, little-endian float32
}

// Summary returns the business summary or the empty string.
func (c *Company) Summary() string {
	if c.LongBusinessSummary == nil {
		return ""
	}
	return *c.LongBusinessSummary
}

// Filters constrains a search by structured company attributes.
// Zero values mean "no constraint", except Limit which falls back to
// DefaultLimit.
type Filters struct {
	Sector       string
	MinMarketCap *float64 // inclusive
	MaxMarketCap *float64 // inclusive
	Limit        int
}

// Normalized returns a copy of f with defaults applied.
func (f Filters) Normalized() Filters {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	return f
}

// Matches reports whether c satisfies the sector and market cap constraints.
// A company without a market cap never satisfies a market cap bound.
func (f Filters) Matches(c *Company) bool {
	if f.Sector != "" && c.Sector != f.Sector {
		return false
	}
	if f.MinMarketCap != nil && (c.MarketCap == nil || *c.MarketCap < *f.MinMarketCap) {
		return false
	}
	if f.MaxMarketCap != nil && (c.MarketCap == nil || *c.MarketCap > *f.MaxMarketCap) {
		return false
	}
	return true
}

// SimilarityMatch is a single nearest-neighbor hit from a vector index.
type SimilarityMatch struct {
	CompanyId  int64
	Similarity float32 // 1.0 identical, 0.0 opposite
}

// SearchResult pairs a company with the similarity that ranked it.
// Similarity is zero for results that were not ranked by vector distance.
type SearchResult struct {
	Company    *Company
	Similarity float32
}
