package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCache(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cache := NewIndexCache(t.TempDir(), time.Hour)
	cache.now = func() time.Time { return now }

	_, err := cache.Get()
	assert.Error(t, err)

	idx := testIndex()
	require.NoError(t, cache.Set(&idx))

	got, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, "7", got.Version)

	now = now.Add(2 * time.Hour)
	_, err = cache.Get()
	assert.Error(t, err)

	stale, err := cache.GetStale()
	require.NoError(t, err)
	assert.Len(t, stale.Packs, 2)

	cache.Invalidate()
	_, err = cache.GetStale()
	assert.Error(t, err)
}
