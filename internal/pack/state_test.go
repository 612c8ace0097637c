package pack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewStateStore(dir)
	s.now = func() time.Time { return clock }
	require.NoError(t, s.Load())
	assert.Empty(t, s.All())

	require.NoError(t, s.MarkInstalled("crm", false))
	assert.False(t, s.IsEnabled("crm"))

	clock = clock.Add(time.Hour)
	require.NoError(t, s.SetEnabled("crm", true))
	entry, ok := s.Get("crm")
	require.True(t, ok)
	assert.True(t, entry.Enabled)
	assert.Equal(t, clock, entry.LastUpdated)
	assert.Equal(t, clock.Add(-time.Hour), entry.InstalledAt)

	// Reinstall keeps the enabled flag
	require.NoError(t, s.MarkInstalled("crm", false))
	assert.True(t, s.IsEnabled("crm"))

	reloaded := NewStateStore(dir)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.IsEnabled("crm"))

	require.NoError(t, reloaded.Remove("crm"))
	require.NoError(t, reloaded.Remove("crm"))
	assert.Empty(t, reloaded.All())

	_, err := os.Stat(filepath.Join(dir, StateFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestStateStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0644))

	s := NewStateStore(dir)
	assert.Error(t, s.Load())
	assert.False(t, s.IsEnabled("crm"))
}

// blockStateWrites makes the temp file path a directory so every save fails
func blockStateWrites(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, StateFileName+".tmp"), 0755))
}

func TestStateStore_FailedWriteKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	s := NewStateStore(dir)
	require.NoError(t, s.Load())
	require.NoError(t, s.MarkInstalled("crm", true))

	blockStateWrites(t, dir)

	assert.Error(t, s.SetEnabled("crm", false))
	assert.True(t, s.IsEnabled("crm"))

	assert.Error(t, s.MarkInstalled("tax", false))
	_, ok := s.Get("tax")
	assert.False(t, ok)

	assert.Error(t, s.Remove("crm"))
	_, ok = s.Get("crm")
	assert.True(t, ok)

	reloaded := NewStateStore(dir)
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.All(), 1)
	assert.True(t, reloaded.IsEnabled("crm"))
}

func TestStateStore_Put(t *testing.T) {
	s := NewStateStore(t.TempDir())
	require.NoError(t, s.Load())
	require.NoError(t, s.MarkInstalled("crm", true))

	prev, ok := s.Get("crm")
	require.True(t, ok)
	require.NoError(t, s.Remove("crm"))

	require.NoError(t, s.Put("crm", prev, true))
	assert.True(t, s.IsEnabled("crm"))

	require.NoError(t, s.Put("crm", prev, false))
	_, ok = s.Get("crm")
	assert.False(t, ok)
}
