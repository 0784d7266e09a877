package mock

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/poiesic/tickerscout/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "cloud software")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "  cloud software ")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "oil drilling")
	require.NoError(t, err)

	require.Len(t, a, core.Dimensions)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
	assert.Equal(t, 3, m.CallCount())
}

func TestMockEmbedder_Blank(t *testing.T) {
	v, err := NewMockEmbedder().EmbedText(context.Background(), " \t ")
	require.NoError(t, err)
	assert.Equal(t, core.ZeroVector(), v)
}

func TestMockEmbedder_ConcurrentCallCount(t *testing.T) {
	m := NewMockEmbedder()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EmbedText(context.Background(), "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.CallCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
}

func TestMockProvider(t *testing.T) {
	embedder := NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, core.ErrProvider
	}
	provider := NewMockProviderWithEmbedder(embedder).(*MockProvider)

	_, err := provider.Embedder().EmbedText(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Same(t, embedder, provider.GetMockEmbedder())

	require.NoError(t, provider.Close())
	assert.True(t, provider.IsClosed())
}
