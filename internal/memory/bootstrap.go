package memory

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BootstrapFiles lists the workspace files consulted on every
// build-system-prompt call: the same set internal/agent's
// writeBootstrapFiles creates, re-used here as the read-side cache key
// set.
var BootstrapFiles = []string{"SOUL.md", "IDENTITY.md", "AGENTS.md", "USER.md", "TOOLS.md"}

type bootstrapEntry struct {
	mtime   time.Time
	content string
}

// BootstrapCache caches the content of a fixed set of workspace files,
// keyed by path, invalidating only when the file's mtime advances. The
// lock is held only around the map lookup/insert; file I/O always runs
// outside the critical section so a slow stat/read on one file never
// blocks a concurrent cache hit on another.
type BootstrapCache struct {
	mu      sync.Mutex
	entries map[string]bootstrapEntry
}

// NewBootstrapCache constructs an empty cache.
func NewBootstrapCache() *BootstrapCache {
	return &BootstrapCache{entries: make(map[string]bootstrapEntry)}
}

// Get returns the content of path, serving the cached copy when the
// file's mtime has not advanced since the last read.
func (c *BootstrapCache) Get(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		c.mu.Lock()
		delete(c.entries, path)
		c.mu.Unlock()
		return "", nil
	}
	if err != nil {
		return "", err
	}
	mtime := info.ModTime()

	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && !mtime.After(entry.mtime) {
		return entry.content, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)

	c.mu.Lock()
	c.entries[path] = bootstrapEntry{mtime: mtime, content: content}
	c.mu.Unlock()
	return content, nil
}

// LoadAll reads BootstrapFiles from root, returning a name→content map.
// Missing files are silently omitted, matching the teacher's tolerant
// bootstrap posture (a workspace need not define every file).
func (c *BootstrapCache) LoadAll(root string) (map[string]string, error) {
	out := make(map[string]string, len(BootstrapFiles))
	for _, name := range BootstrapFiles {
		content, err := c.Get(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		if content != "" {
			out[name] = content
		}
	}
	return out, nil
}
