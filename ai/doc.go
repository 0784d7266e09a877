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


// Package ai defines the embedding contracts used by the pipeline and the
// search service.
//
// # Interfaces
//
//   - Embedder: turns text into a core.Dimensions-component vector
//   - AIProvider: owns an Embedder and its lifecycle
//   - EmbeddingCache: durable lookaside storage for vectors
//
// # Configuration
//
// Config is built with functional options and validated before a provider
// is constructed:
//
//	cfg := ai.NewConfig(ai.WithAPIKey(key))
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	provider, err := openai.NewProvider(cfg)
//
// Implementations live in subpackages: openai for the hosted service and
// mock for tests.
package ai
