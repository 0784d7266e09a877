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


// Package storage provides the storage abstraction layer for tickerscout.
//
// This package defines the interfaces that decouple the company catalog and
// the vector index from the embedding pipeline and the search service. Two
// backends implement them: an embedded file (SQLite with the sqlite-vec
// extension) and a relational database (PostgreSQL with pgvector).
//
// # Architecture
//
//   - CatalogRepository: reads and updates company records
//   - VectorIndex: stores one embedding per company and answers nearest-k queries
//   - FilteredSearcher: optional single-statement vector search with catalog filters
//
// # Backend Selection
//
// BackendFor maps a connection string to a backend name:
//
//	backend, err := storage.BackendFor("file:./data/companies.db")  // "sqlite"
//	backend, err = storage.BackendFor("postgresql://localhost/app")  // "postgres"
//
// # Wire Format
//
// Vectors cross storage boundaries as little-endian float32 blobs of
// core.Dimensions components (6144 bytes). MarshalVector and UnmarshalVector
// convert between the two representations.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use by multiple goroutines.
package storage
