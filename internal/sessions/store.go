// Package sessions implements the append-only JSONL session store.
// Grounded on the teacher's Store interface shape
// (internal/sessions/store.go), with the JSONL read/write logic written
// fresh since the teacher's own JSONL backend was not among the
// retrieved files.
package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Store is the session persistence contract used by the agent loop.
type Store interface {
	Get(ctx context.Context, key string) (*models.Session, error)
	GetOrCreate(ctx context.Context, agentID string, channel models.Channel, chatID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	AppendTurn(ctx context.Context, key string, msg models.ConversationMessage) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

type metadataLine struct {
	Type      string    `json:"_type"`
	Key       string    `json:"key"`
	AgentID   string    `json:"agent_id"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore is a JSONL-backed Store rooted at dir. Sessions load on
// demand from dir/<sanitized_key>.jsonl and are cached in memory; writes
// go through to disk.
type FileStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]*models.Session
}

// NewFileStore constructs a store rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sessions: create dir: %w", err)
	}
	return &FileStore{dir: dir, cache: make(map[string]*models.Session)}, nil
}

// sanitizeKey replaces ':' with '_' so a session key is safe as a
// filename. Inverse applied on List.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

func desanitizeKey(name string) string {
	return strings.ReplaceAll(name, "_", ":")
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".jsonl")
}

// Get loads a session by key, from cache if present, else from disk.
// Returns (nil, nil) if no session exists for that key.
func (s *FileStore) Get(ctx context.Context, key string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *FileStore) getLocked(key string) (*models.Session, error) {
	if sess, ok := s.cache[key]; ok {
		return sess, nil
	}
	sess, err := s.loadFromDisk(key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	s.cache[key] = sess
	return sess, nil
}

func (s *FileStore) loadFromDisk(key string) (*models.Session, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: open %s: %w", key, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var sess *models.Session
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if sess == nil {
			var meta metadataLine
			if err := json.Unmarshal(line, &meta); err != nil {
				return nil, fmt.Errorf("sessions: parse metadata line for %s: %w", key, err)
			}
			sess = &models.Session{
				ID:        meta.Key,
				AgentID:   meta.AgentID,
				Channel:   models.Channel(meta.Channel),
				ChatID:    meta.ChatID,
				CreatedAt: meta.CreatedAt,
				UpdatedAt: meta.UpdatedAt,
			}
			continue
		}
		var msg models.ConversationMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("sessions: parse message line for %s: %w", key, err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sessions: scan %s: %w", key, err)
	}
	return sess, nil
}

// GetOrCreate returns the existing session for (agentID, channel, chatID)
// or creates and persists a new empty one.
func (s *FileStore) GetOrCreate(ctx context.Context, agentID string, channel models.Channel, chatID string) (*models.Session, error) {
	key := models.SessionKey(agentID, channel, chatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	now := time.Now()
	sess = &models.Session{
		ID:        key,
		AgentID:   agentID,
		Channel:   channel,
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveLocked(sess); err != nil {
		return nil, err
	}
	s.cache[key] = sess
	return sess, nil
}

// Save rewrites the full session file (metadata line plus every message),
// matching spec.md's save_session contract.
func (s *FileStore) Save(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(sess); err != nil {
		return err
	}
	s.cache[sess.ID] = sess
	return nil
}

func (s *FileStore) saveLocked(sess *models.Session) error {
	tmp := s.path(sess.ID) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("sessions: create tmp for %s: %w", sess.ID, err)
	}

	w := bufio.NewWriter(f)
	meta := metadataLine{
		Type:      "metadata",
		Key:       sess.ID,
		AgentID:   sess.AgentID,
		Channel:   string(sess.Channel),
		ChatID:    sess.ChatID,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if err := writeJSONLine(w, meta); err != nil {
		f.Close()
		return err
	}
	for _, msg := range sess.Messages {
		if err := writeJSONLine(w, msg); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("sessions: flush %s: %w", sess.ID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sessions: close %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmp, s.path(sess.ID)); err != nil {
		return fmt.Errorf("sessions: rename %s: %w", sess.ID, err)
	}
	return nil
}

func writeJSONLine(w *bufio.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sessions: marshal line: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// AppendTurn appends one message line to the on-disk file and updates the
// cached session, without rewriting the whole file.
func (s *FileStore) AppendTurn(ctx context.Context, key string, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(key)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("sessions: append to unknown session %q", key)
	}

	f, err := os.OpenFile(s.path(key), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("sessions: open for append %s: %w", key, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeJSONLine(w, msg); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("sessions: flush append %s: %w", key, err)
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	return nil
}

// List returns all session keys known to the store, sorted for
// determinism (spec.md's list_sessions contract).
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sessions: read dir: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".jsonl")
		keys = append(keys, desanitizeKey(name))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a session's file and cache entry.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
