package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchIterator(t *testing.T) {
	t.Run("splits into full and partial batches", func(t *testing.T) {
		it := NewBatchIterator(makeCompanies(12), 10)
		assert.Equal(t, 2, it.Batches())

		first, ok := it.Next()
		require.True(t, ok)
		assert.Len(t, first, 10)
		assert.True(t, it.HasMore())

		second, ok := it.Next()
		require.True(t, ok)
		assert.Len(t, second, 2)
		assert.Equal(t, int64(11), second[0].Id)
		assert.False(t, it.HasMore())

		_, ok = it.Next()
		assert.False(t, ok)
	})

	t.Run("exact multiple", func(t *testing.T) {
		it := NewBatchIterator(makeCompanies(20), 10)
		assert.Equal(t, 2, it.Batches())
	})

	t.Run("empty", func(t *testing.T) {
		it := NewBatchIterator(nil, 10)
		assert.Equal(t, 0, it.Batches())
		assert.False(t, it.HasMore())
		_, ok := it.Next()
		assert.False(t, ok)
	})

	t.Run("default batch size", func(t *testing.T) {
		it := NewBatchIterator(makeCompanies(25), 0)
		assert.Equal(t, 3, it.Batches())
	})
}
