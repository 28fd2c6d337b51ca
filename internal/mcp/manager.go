package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager tracks the set of connected MCP servers and supports
// dynamic add/remove ("weft mcp add/remove"), draining a removed
// server's in-flight calls for up to DrainTimeout before closing it
// rather than cutting them off mid-flight (spec.md §4.11's hot
// reload). Grounded on the teacher's internal/mcp manager, which
// aggregates multiple named clients behind one lookup.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

// NewManager constructs an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{clients: make(map[string]*Client), logger: logger.With("component", "mcp_manager")}
}

// Add connects a new server and registers it under cfg.ID, replacing
// any existing client with the same ID (the old one is drained and
// closed in the background).
func (m *Manager) Add(ctx context.Context, cfg ServerConfig) error {
	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("mcp: add %s: %w", cfg.ID, err)
	}
	if _, err := client.Initialize(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("mcp: initialize %s: %w", cfg.ID, err)
	}

	m.mu.Lock()
	old := m.clients[cfg.ID]
	m.clients[cfg.ID] = client
	m.mu.Unlock()

	if old != nil {
		go m.drainAndClose(old, cfg.ID)
	}
	return nil
}

// Remove unregisters a server, draining its in-flight calls for up to
// DrainTimeout before forcibly closing it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	client, ok := m.clients[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("mcp: no such server %s", id)
	}
	delete(m.clients, id)
	m.mu.Unlock()

	m.drainAndClose(client, id)
	return nil
}

func (m *Manager) drainAndClose(client *Client, id string) {
	deadline := time.Now().Add(DrainTimeout)
	for time.Now().Before(deadline) {
		if client.Inflight() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if n := client.Inflight(); n > 0 {
		m.logger.Warn("mcp: closing server with calls still in flight", "id", id, "inflight", n)
	}
	if err := client.Close(); err != nil {
		m.logger.Warn("mcp: close error", "id", id, "error", err)
	}
}

// Get returns the client registered under id, if any.
func (m *Manager) Get(id string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

// List returns the ids of all currently registered servers.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.clients))
	for id := range m.clients {
		out = append(out, id)
	}
	return out
}

// CloseAll drains and closes every registered server, used on
// shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, c := range clients {
		wg.Add(1)
		go func(id string, c *Client) {
			defer wg.Done()
			m.drainAndClose(c, id)
		}(id, c)
	}
	wg.Wait()
}

// AggregatedTools calls tools/list on every connected server and
// returns the union, prefixing each tool name with its server id to
// avoid collisions ("filesystem.read_file" vs "web.read_file").
func (m *Manager) AggregatedTools(ctx context.Context) ([]ToolDescriptor, error) {
	m.mu.RLock()
	snapshot := make(map[string]*Client, len(m.clients))
	for id, c := range m.clients {
		snapshot[id] = c
	}
	m.mu.RUnlock()

	var out []ToolDescriptor
	for id, c := range snapshot {
		tools, err := c.ListTools(ctx)
		if err != nil {
			m.logger.Warn("mcp: tools/list failed", "id", id, "error", err)
			continue
		}
		for _, t := range tools {
			t.Name = id + "." + t.Name
			out = append(out, t)
		}
	}
	return out, nil
}
