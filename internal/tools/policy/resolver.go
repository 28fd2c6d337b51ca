// Package policy implements tool-name pattern matching: canonical-name
// resolution via aliases, group expansion, and wildcard patterns like
// "mcp:server.*". Grounded on the teacher's
// internal/tools/policy/resolver.go.
package policy

import (
	"strings"
	"sync"
)

// NormalizeTool lower-cases and trims a tool name for consistent lookup.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolver expands group references and wildcard patterns in an allow or
// deny list into the concrete tool names they denote.
type Resolver struct {
	mu         sync.RWMutex
	groups     map[string][]string
	mcpServers map[string][]string
	aliases    map[string]string
}

// NewResolver constructs an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		groups:     map[string][]string{},
		mcpServers: map[string][]string{},
		aliases:    map[string]string{},
	}
}

// AddGroup registers a named group of tools, referenceable as "group:name".
func (r *Resolver) AddGroup(name string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups["group:"+name] = tools
}

// RegisterMCPServer records the tool set exposed by an MCP server, so
// "mcp:<serverID>.*" can be expanded.
func (r *Resolver) RegisterMCPServer(serverID string, toolNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcpServers[serverID] = toolNames
}

// RegisterAlias maps an alternative name to its canonical tool name.
func (r *Resolver) RegisterAlias(alias, canonical string) {
	alias = NormalizeTool(alias)
	canonical = NormalizeTool(canonical)
	if alias == "" || canonical == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
}

// CanonicalName resolves name through any registered alias.
func (r *Resolver) CanonicalName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(name)
}

func (r *Resolver) canonicalLocked(name string) string {
	n := NormalizeTool(name)
	if canon, ok := r.aliases[n]; ok {
		return canon
	}
	return n
}

// Expand turns group references and wildcard patterns in items into
// concrete tool names, deduplicated, preserving first-seen order.
func (r *Resolver) Expand(items []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, item := range items {
		norm := r.canonicalLocked(item)
		if norm == "*" {
			add("*")
			continue
		}
		if tools, ok := r.groups[norm]; ok {
			for _, t := range tools {
				add(t)
			}
			continue
		}
		if strings.HasPrefix(norm, "mcp:") && strings.HasSuffix(norm, ".*") {
			serverID := strings.TrimSuffix(strings.TrimPrefix(norm, "mcp:"), ".*")
			for _, t := range r.mcpServers[serverID] {
				add("mcp:" + serverID + "." + t)
			}
			continue
		}
		add(norm)
	}
	return out
}

// MatchesPattern reports whether name matches pattern, supporting the
// bare wildcard "*" and an "mcp:server.*" / "prefix.*" suffix wildcard.
func MatchesPattern(name, pattern string) bool {
	name = NormalizeTool(name)
	pattern = NormalizeTool(pattern)
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(name, prefix)
	}
	return name == pattern
}
