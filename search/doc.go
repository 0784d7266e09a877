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


// Package search answers company queries.
//
// A Searcher resolves each call through a three-tier strategy:
//   - Combined: the vector index filters and ranks in one round trip
//     (storage.FilteredSearcher backends)
//   - Resolve: nearest neighbors by vector, then filtered against the catalog
//   - Text match: case-sensitive substring match over names, sector,
//     industry and summary, used whenever the vector path fails or finds
//     no embedded candidates
//
// Queries without text skip vectors entirely and list companies by market
// cap. Every result carries the Tier that served it.
package search
