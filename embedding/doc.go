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


// Package embedding implements the batch embedding pipeline.
//
// A run resets the vector index, loads every company that has a business
// summary, and walks them in fixed-size batches. Each company in a batch
// is embedded, stored in the vector index and mirrored into the catalog on
// its own worker; one failure never affects the others. Batches are
// separated by a fixed delay to stay under the provider's rate limits.
//
// # Usage
//
//	pipeline, err := embedding.NewPipeline(catalog, index, provider,
//	    embedding.WithProgressWriter(os.Stderr),
//	)
//	if err != nil {
//	    return err
//	}
//	defer pipeline.Release()
//
//	report, err := pipeline.Run(ctx)
package embedding
