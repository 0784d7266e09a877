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

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidBatchSize is returned when the batch size is <= 0
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrCatalogRequired is returned when no catalog repository is supplied
	ErrCatalogRequired = errors.New("catalog repository is required")

	// ErrIndexRequired is returned when no vector index is supplied
	ErrIndexRequired = errors.New("vector index is required")

	// ErrAIProviderRequired is returned when no AI provider is supplied
	ErrAIProviderRequired = errors.New("AI provider is required")
)
