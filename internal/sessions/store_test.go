package sessions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestGetOrCreatePersistsEmptySession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "helper", models.ChannelTelegram, "chat42")
	require.NoError(t, err)
	require.Equal(t, "helper:telegram:chat42", sess.ID)
	require.Empty(t, sess.Messages)

	// The key's colons are sanitized in the filename.
	_, err = os.Stat(filepath.Join(store.dir, "helper_telegram_chat42.jsonl"))
	require.NoError(t, err)
}

func TestAppendTurnSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "helper", models.ChannelCLI, "local")
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(ctx, sess.ID, models.ConversationMessage{Role: models.RoleUser, Content: "hello", CreatedAt: time.Now()}))
	require.NoError(t, store.AppendTurn(ctx, sess.ID, models.ConversationMessage{Role: models.RoleAssistant, Content: "hi", CreatedAt: time.Now()}))

	// A fresh store re-reads from disk, not the first store's cache.
	reloaded, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reloaded.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "hello", got.Messages[0].Content)
	require.Equal(t, models.RoleAssistant, got.Messages[1].Role)
}

func TestAppendTurnUnknownSessionFails(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendTurn(context.Background(), "missing:cli:x", models.ConversationMessage{Role: models.RoleUser})
	require.Error(t, err)
}

func TestUnknownMessageFieldsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "a", models.ChannelCLI, "c")
	require.NoError(t, err)

	// Simulate a file written by a newer version carrying an extra field.
	path := filepath.Join(dir, "a_cli_c.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"role":"user","content":"hi","created_at":"2026-01-02T03:04:05Z","novel_field":{"x":1}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reloaded, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reloaded.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Contains(t, got.Messages[0].Extra, "novel_field")

	// A full rewrite preserves the unknown field verbatim.
	require.NoError(t, reloaded.Save(ctx, got))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "novel_field"))
}

func TestListReturnsSortedDesanitizedKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "zeta", models.ChannelCLI, "1")
	require.NoError(t, err)
	_, err = store.GetOrCreate(ctx, "alpha", models.ChannelCLI, "1")
	require.NoError(t, err)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha:cli:1", "zeta:cli:1"}, keys)
}

func TestDeleteRemovesFileAndCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "a", models.ChannelCLI, "gone")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.ID))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	// Deleting a nonexistent session is not an error.
	require.NoError(t, store.Delete(ctx, sess.ID))
}
