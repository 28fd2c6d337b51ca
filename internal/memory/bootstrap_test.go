package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBootstrapCacheServesCacheUntilMtimeAdvances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SOUL.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	c := NewBootstrapCache()
	got, err := c.Get(path)
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	// Rewrite without changing mtime: cache should still serve v1.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	sameMTime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, sameMTime, sameMTime))
	c.mu.Lock()
	c.entries[path] = bootstrapEntry{mtime: sameMTime, content: "v1"}
	c.mu.Unlock()

	got, err = c.Get(path)
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	// Advance mtime: cache must refresh.
	newMTime := time.Now()
	require.NoError(t, os.Chtimes(path, newMTime, newMTime))
	got, err = c.Get(path)
	require.NoError(t, err)
	require.Equal(t, "v2", got)
}

func TestBootstrapCacheMissingFileReturnsEmpty(t *testing.T) {
	c := NewBootstrapCache()
	got, err := c.Get(filepath.Join(t.TempDir(), "NOPE.md"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBootstrapCacheLoadAllSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SOUL.md"), []byte("persona"), 0o600))

	c := NewBootstrapCache()
	files, err := c.LoadAll(dir)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"SOUL.md": "persona"}, files)
}
