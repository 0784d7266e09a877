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


// Package sqlite implements the company catalog and the vector index on an
// embedded SQLite file with the sqlite-vec extension.
//
// One Store serves both storage.CatalogRepository and storage.VectorIndex.
// Vectors live in the company_embeddings table as little-endian float32
// blobs and are ranked with vec_distance_cosine, so no virtual table or
// approximate index is involved.
//
//	store, err := sqlite.Open("./data/companies.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
package sqlite
