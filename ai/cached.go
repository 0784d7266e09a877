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


package ai

import (
	"context"
	"log/slog"
	"strings"
)

// CachedEmbedder consults an EmbeddingCache before calling the wrapped
// Embedder. Cache failures are logged and otherwise ignored; provider
// failures propagate unchanged.
type CachedEmbedder struct {
	inner  Embedder
	cache  EmbeddingCache
	model  string
	logger *slog.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner. model namespaces the cache entries so
// vectors from different models never mix.
func NewCachedEmbedder(inner Embedder, cache EmbeddingCache, model string) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		model:  model,
		logger: slog.Default().With("component", "cached-embedder"),
	}
}

// EmbedText returns the cached vector for text or embeds and caches it.
// Blank text bypasses the cache.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return c.inner.EmbedText(ctx, text)
	}

	if vector, found, err := c.cache.Get(ctx, c.model, key); err != nil {
		c.logger.Warn("embedding cache read failed", "err", err)
	} else if found {
		c.logger.Debug("embedding cache hit", "model", c.model)
		return vector, nil
	}

	vector, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(ctx, c.model, key, vector); err != nil {
		c.logger.Warn("embedding cache write failed", "err", err)
	}
	return vector, nil
}

// EmbedTexts embeds each text through EmbedText.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}
