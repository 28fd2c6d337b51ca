// Package memory implements the two-layer memory store of spec.md §4.3:
// a synchronous on-disk keyword layer and an asynchronous vector layer
// with a bounded indexing queue, a staging buffer, and periodic merge
// into the main ANN index. Grounded on the teacher's
// internal/memory.Manager (config-driven constructor with applied
// defaults, embedder/backend composition) and internal/sessions' own
// append-only JSONL keyword store for the on-disk format.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/weave-logic-ai/weft/internal/memory/embeddings"
	"github.com/weave-logic-ai/weft/internal/memory/vectorstore"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// Config controls queue sizing, retry behavior, and reindex cadence.
// Zero values are replaced with defaults in NewManager, matching the
// teacher's "if cfg.X == 0 { cfg.X = default }" idiom.
type Config struct {
	QueueCapacity    int
	ReindexThreshold int
	MaxRetries       int
	BaseRetryDelay   time.Duration
	MaxRetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.ReindexThreshold <= 0 {
		c.ReindexThreshold = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = 200 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Second
	}
	return c
}

type stagedVector struct {
	vector  []float32
	content string
	entry   models.MemoryEntry
}

type indexJob struct {
	entry models.MemoryEntry
}

// Manager coordinates the keyword and vector layers for one agent's
// memory store.
type Manager struct {
	dir         string
	keywordPath string
	embedder    embeddings.Embedder
	store       *vectorstore.Store
	cfg         Config
	logger      *slog.Logger

	keywordMu sync.Mutex
	keyword   map[string]models.MemoryEntry

	stagingMu sync.Mutex
	staging   map[string]stagedVector

	statusMu sync.Mutex
	status   map[string]models.MemoryIndexStatus
	pending  int

	queue chan indexJob
	wg    sync.WaitGroup
}

// NewManager constructs a Manager rooted at dir (typically
// <workspace>/memory), loading any existing keyword entries and
// starting the background vector-indexing worker.
func NewManager(dir string, embedder embeddings.Embedder, store *vectorstore.Store, cfg Config, logger *slog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("memory: create dir: %w", err)
	}

	m := &Manager{
		dir:         dir,
		keywordPath: filepath.Join(dir, "keyword.jsonl"),
		embedder:    embedder,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		keyword:     make(map[string]models.MemoryEntry),
		staging:     make(map[string]stagedVector),
		status:      make(map[string]models.MemoryIndexStatus),
		queue:       make(chan indexJob, cfg.QueueCapacity),
	}

	if err := m.loadKeyword(); err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go m.worker()

	return m, nil
}

func (m *Manager) loadKeyword() error {
	f, err := os.Open(m.keywordPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: open keyword store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.MemoryEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			m.logger.Warn("memory: skipping malformed keyword record", "error", err)
			continue
		}
		m.keyword[entry.ID] = entry
	}
	return scanner.Err()
}

// Store writes the entry to the keyword layer synchronously, then
// enqueues it for asynchronous vector embedding. Store blocks if the
// indexing queue is full, matching the bounded-backpressure model of
// spec.md §5.
func (m *Manager) Store(ctx context.Context, entry models.MemoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	m.keywordMu.Lock()
	m.keyword[entry.ID] = entry
	err := m.appendKeywordLocked(entry)
	m.keywordMu.Unlock()
	if err != nil {
		return err
	}

	m.setStatus(entry.ID, models.MemoryIndexPending)

	select {
	case m.queue <- indexJob{entry: entry}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) appendKeywordLocked(entry models.MemoryEntry) error {
	f, err := os.OpenFile(m.keywordPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("memory: open keyword store for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("memory: marshal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("memory: append entry: %w", err)
	}
	return nil
}

func (m *Manager) setStatus(key string, s models.MemoryIndexStatus) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	prev, had := m.status[key]
	if s == models.MemoryIndexPending && (!had || prev != models.MemoryIndexPending) {
		m.pending++
	} else if had && prev == models.MemoryIndexPending && s != models.MemoryIndexPending {
		m.pending--
	}
	m.status[key] = s
}

// Status returns the current vector-indexing status of key.
func (m *Manager) Status(key string) (models.MemoryIndexStatus, bool) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	s, ok := m.status[key]
	return s, ok
}

// PendingCount returns the number of entries awaiting vector embedding.
func (m *Manager) PendingCount() int {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.pending
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.queue {
		m.process(job.entry)
	}
}

func (m *Manager) process(entry models.MemoryEntry) {
	ctx := context.Background()
	vec, err := m.embedWithRetry(ctx, entry.Content)
	if err != nil {
		m.logger.Warn("memory: embedding failed, leaving entry keyword-only", "id", entry.ID, "error", err)
		m.setStatus(entry.ID, models.MemoryIndexFailed)
		return
	}

	m.stagingMu.Lock()
	m.staging[entry.ID] = stagedVector{vector: vec, content: entry.Content, entry: entry}
	shouldRebuild := len(m.staging) >= m.cfg.ReindexThreshold
	m.stagingMu.Unlock()

	m.setStatus(entry.ID, models.MemoryIndexStaged)

	if shouldRebuild {
		m.rebuild(ctx)
	}
}

func (m *Manager) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := m.backoffDelay(attempt)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vec, err := m.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("memory: embedding failed after %d retries: %w", m.cfg.MaxRetries, lastErr)
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	base := m.cfg.BaseRetryDelay
	d := base << uint(attempt-1) // #nosec G115 -- attempt is small, bounded by MaxRetries
	if d > m.cfg.MaxRetryDelay {
		d = m.cfg.MaxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1)) // #nosec G404 -- jitter, not security
	return d + jitter
}

// rebuild merges the entire staging buffer into the main ANN index and
// clears it. Grounded on spec.md §4.3's "incremental staging and
// periodic rebuild at reindex_threshold"; since the concrete ANN
// backend here (chromem-go) upserts in O(1) rather than requiring a
// true batch rebuild, this folds staged vectors into the main index
// one at a time and then drops them from the staging buffer so search
// no longer needs to brute-force them.
func (m *Manager) rebuild(ctx context.Context) {
	m.stagingMu.Lock()
	staged := make(map[string]stagedVector, len(m.staging))
	for k, v := range m.staging {
		staged[k] = v
	}
	m.stagingMu.Unlock()

	merged := make([]string, 0, len(staged))
	for key, sv := range staged {
		if err := m.store.Upsert(ctx, key, sv.vector, sv.content); err != nil {
			m.logger.Warn("memory: rebuild upsert failed, leaving staged", "id", key, "error", err)
			continue
		}
		merged = append(merged, key)
	}

	m.stagingMu.Lock()
	for _, key := range merged {
		delete(m.staging, key)
	}
	m.stagingMu.Unlock()

	for _, key := range merged {
		m.setStatus(key, models.MemoryIndexDone)
	}
}

// SearchResult pairs a stored entry with its layer and score.
type SearchResult = models.MemorySearchResult

// SearchKeyword does a case-sensitive substring match over the keyword
// layer, scoring by number of occurrences. An empty query matches every
// entry, each with score 0.
func (m *Manager) SearchKeyword(query string, topK int) []SearchResult {
	m.keywordMu.Lock()
	entries := make([]models.MemoryEntry, 0, len(m.keyword))
	for _, e := range m.keyword {
		entries = append(entries, e)
	}
	m.keywordMu.Unlock()

	var out []SearchResult
	for _, e := range entries {
		count := countOccurrences(e.Content, query)
		if count == 0 && query != "" {
			continue
		}
		out = append(out, SearchResult{Entry: e, Score: float64(count), Layer: "keyword"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// SearchVector embeds query and searches both the main ANN index and a
// brute-force sweep of the staging buffer, merging by key and keeping
// the highest similarity on collision.
func (m *Manager) SearchVector(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	qvec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	byKey := make(map[string]SearchResult)

	matches, err := m.store.Query(ctx, qvec, topK)
	if err != nil {
		return nil, err
	}
	for _, match := range matches {
		byKey[match.Key] = SearchResult{
			Entry: models.MemoryEntry{ID: match.Key, Content: match.Content, Indexed: true},
			Score: match.Similarity,
			Layer: "vector",
		}
	}

	m.stagingMu.Lock()
	staged := make([]stagedVector, 0, len(m.staging))
	for _, sv := range m.staging {
		staged = append(staged, sv)
	}
	m.stagingMu.Unlock()

	for _, sv := range staged {
		sim := cosineSimilarity(qvec, sv.vector)
		existing, ok := byKey[sv.entry.ID]
		if ok && existing.Score >= sim {
			continue
		}
		byKey[sv.entry.ID] = SearchResult{Entry: sv.entry, Score: sim, Layer: "vector"}
	}

	out := make([]SearchResult, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Close stops the background worker, waiting for the queue to drain.
func (m *Manager) Close() {
	close(m.queue)
	m.wg.Wait()
}

func countOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrtF(na) * sqrtF(nb))
}

func sqrtF(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
