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


package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/observability"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	// langchaingo replaces newlines with spaces unless told otherwise.
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
// Blank text yields the zero vector without a network call.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Only non-blank texts are sent to the provider, trimmed but with their
// interior newlines intact.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			results[i] = make([]float32, e.dimensions)
			continue
		}
		pending = append(pending, trimmed)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	e.logger.Debug("generating embeddings for texts", "count", len(pending))

	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, pending)
	observability.ProviderRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderErrors.Inc()
		e.logger.Error("failed to generate embeddings", "count", len(pending), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrProvider, err)
	}
	if len(vectors) != len(pending) {
		observability.ProviderErrors.Inc()
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", core.ErrProvider, len(pending), len(vectors))
	}

	for j, vector := range vectors {
		if len(vector) != e.dimensions {
			return nil, fmt.Errorf("%w: got %d, expected %d", core.ErrDimensionMismatch, len(vector), e.dimensions)
		}
		results[pendingIdx[j]] = vector
	}
	return results, nil
}
