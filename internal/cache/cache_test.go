package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wm/internal/errors"
)

func TestLoad_MissingIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())
	require.True(t, c.ShouldProcess("s1", "sha256:a", false))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	require.True(t, errors.Is(err, errors.ErrParse), "got %v", err)
}

func TestShouldProcess_AfterRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distill", "cache.json")
	c, err := Load(path)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.RecordProcessed("s1", Entry{Fingerprint: "sha256:a", LastProcessed: now, ProcessedAt: now}))

	require.False(t, c.ShouldProcess("s1", "sha256:a", false))
	require.True(t, c.ShouldProcess("s1", "sha256:b", false))
	require.True(t, c.ShouldProcess("s1", "sha256:a", true))
	require.True(t, c.ShouldProcess("s2", "sha256:a", false))

	// Persisted: a fresh load agrees
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.False(t, reloaded.ShouldProcess("s1", "sha256:a", false))
	e, ok := reloaded.Get("s1")
	require.True(t, ok)
	require.True(t, e.LastProcessed.Equal(now))
}

func TestRecordProcessed_Monotonic(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, c.RecordProcessed("s1", Entry{Fingerprint: "a", LastProcessed: later}))
	require.NoError(t, c.RecordProcessed("s1", Entry{Fingerprint: "b", LastProcessed: earlier}))

	e, _ := c.Get("s1")
	require.Equal(t, "b", e.Fingerprint)
	require.True(t, e.LastProcessed.Equal(later), "marker moved backward to %v", e.LastProcessed)
	require.True(t, c.LastProcessed("s1").Equal(later))
	require.True(t, c.LastProcessed("unknown").IsZero())
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.RecordProcessed("a", Entry{Fingerprint: "1"}))
	require.NoError(t, c.RecordProcessed("b", Entry{Fingerprint: "2"}))
	require.Equal(t, []string{"a", "b"}, c.SessionIDs())

	require.NoError(t, c.Reset("a"))
	require.Equal(t, []string{"b"}, c.SessionIDs())

	require.NoError(t, c.Reset(""))
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.Len())
}

func TestRecordProcessed_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.RecordProcessed("s", Entry{Fingerprint: "x"}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
