package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weave-logic-ai/weft/internal/memory/embeddings"
	"github.com/weave-logic-ai/weft/internal/memory/vectorstore"
	"github.com/weave-logic-ai/weft/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	store, err := vectorstore.New("test", "")
	require.NoError(t, err)
	emb := embeddings.NewHashEmbedder(16)
	m, err := NewManager(filepath.Join(dir, "memory"), emb, store, Config{ReindexThreshold: 2}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManagerStoreIsImmediatelyKeywordSearchable(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Store(context.Background(), models.MemoryEntry{ID: "1", Content: "the quick brown fox"}))

	results := m.SearchKeyword("quick", 10)
	require.Len(t, results, 1)
	require.Equal(t, "keyword", results[0].Layer)
}

func TestManagerVectorSearchFindsStagedEntryBeforeRebuild(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Store(context.Background(), models.MemoryEntry{ID: "1", Content: "alpha beta gamma"}))

	require.Eventually(t, func() bool {
		status, ok := m.Status("1")
		return ok && (status == models.MemoryIndexStaged || status == models.MemoryIndexDone)
	}, time.Second, 5*time.Millisecond)

	results, err := m.SearchVector(context.Background(), "alpha beta gamma", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestManagerRebuildMovesStagedToMainIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Store(ctx, models.MemoryEntry{ID: "1", Content: "one"}))
	require.NoError(t, m.Store(ctx, models.MemoryEntry{ID: "2", Content: "two"}))

	require.Eventually(t, func() bool {
		s1, _ := m.Status("1")
		s2, _ := m.Status("2")
		return s1 == models.MemoryIndexDone && s2 == models.MemoryIndexDone
	}, time.Second, 5*time.Millisecond)

	m.stagingMu.Lock()
	stagedCount := len(m.staging)
	m.stagingMu.Unlock()
	require.Zero(t, stagedCount)
}

func TestManagerPendingCountDropsAfterProcessing(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Store(context.Background(), models.MemoryEntry{ID: "1", Content: "hello"}))

	require.Eventually(t, func() bool {
		return m.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)
}
