package ai

import (
	"testing"

	"github.com/poiesic/tickerscout/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, core.Dimensions, cfg.Dimensions)
	assert.Empty(t, cfg.APIKey)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultEmbeddingHost, cfg.EmbeddingHost)
		assert.Equal(t, DefaultEmbeddingModel, cfg.EmbeddingModel)
	})

	t.Run("with options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://localhost:8080/v1"),
			WithEmbeddingModel("text-embedding-3-large"),
			WithAPIKey("sk-test"),
			WithDimensions(3072),
		)

		assert.Equal(t, "http://localhost:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, 3072, cfg.Dimensions)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"already normalized", "http://localhost:8080/v1", "http://localhost:8080/v1"},
		{"missing suffix", "http://localhost:8080", "http://localhost:8080/v1"},
		{"trailing slash", "http://localhost:8080/", "http://localhost:8080/v1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, APIKey: "  key \n"}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, "key", cfg.APIKey)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"))
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := NewConfig()
		assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)
	})

	t.Run("blank api key", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("   "))
		assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"), WithEmbeddingModel(""))
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingModel")
	})

	t.Run("missing host", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"), WithEmbeddingHost(""))
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad dimensions", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"), WithDimensions(0))
		assert.Error(t, cfg.Validate())
	})

	t.Run("normalizes host", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"), WithEmbeddingHost("http://proxy:9000"))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://proxy:9000/v1", cfg.EmbeddingHost)
	})
}
