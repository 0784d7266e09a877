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


package embedding

import "github.com/poiesic/tickerscout/core"

const (
	// DefaultBatchSize is the number of companies embedded concurrently.
	DefaultBatchSize = 10
)

// BatchIterator splits a company list into consecutive batches.
type BatchIterator struct {
	companies []*core.Company
	batchSize int
	next      int
}

// NewBatchIterator creates a new batch iterator.
// batchSize: number of companies per batch (falls back to DefaultBatchSize when <= 0)
func NewBatchIterator(companies []*core.Company, batchSize int) *BatchIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchIterator{
		companies: companies,
		batchSize: batchSize,
	}
}

// Next returns the next batch, or false when the list is exhausted.
func (it *BatchIterator) Next() ([]*core.Company, bool) {
	if it.next >= len(it.companies) {
		return nil, false
	}
	end := min(it.next+it.batchSize, len(it.companies))
	batch := it.companies[it.next:end]
	it.next = end
	return batch, true
}

// HasMore reports whether another batch follows.
func (it *BatchIterator) HasMore() bool {
	return it.next < len(it.companies)
}

// Batches returns the total number of batches.
func (it *BatchIterator) Batches() int {
	return (len(it.companies) + it.batchSize - 1) / it.batchSize
}
