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

import "errors"

// Error taxonomy shared by providers, vector indexes and the pipeline.
var (
	// ErrProvider indicates the external embedding call failed.
	ErrProvider = errors.New("embedding provider error")

	// ErrDimensionMismatch indicates a vector does not have exactly Dimensions components.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnection indicates the backend is unreachable or the connection pool is exhausted.
	ErrConnection = errors.New("backend connection error")

	// ErrInitialization indicates vector storage setup or its self-test failed.
	ErrInitialization = errors.New("vector index initialization failed")
)
