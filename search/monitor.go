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


package search

import "github.com/poiesic/tickerscout/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, filters core.Filters)
	AfterEmbedding(vector []float32)
	VectorPathFailed(err error)
	TierServed(tier Tier)
	Finish(results *Results)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.Filters) {}
func (n *noopMonitor) AfterEmbedding(_ []float32)     {}
func (n *noopMonitor) VectorPathFailed(_ error)       {}
func (n *noopMonitor) TierServed(_ Tier)              {}
func (n *noopMonitor) Finish(_ *Results)              {}
