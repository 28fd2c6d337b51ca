// Package tools implements the name→tool registry, policy-gated
// dispatch, and parallel execution. Grounded on the teacher's
// internal/agent/tool_registry.go and tool_exec.go.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ErrorKind enumerates the tool error taxonomy from spec.md §4.4.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrInvalidArgs      ErrorKind = "invalid_args"
	ErrExecutionFailed  ErrorKind = "execution_failed"
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrFileNotFound     ErrorKind = "file_not_found"
	ErrInvalidPath      ErrorKind = "invalid_path"
	ErrTimeout          ErrorKind = "timeout"
)

// ToolError is a typed tool-registry error carrying its taxonomy kind.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tools: %s: %s: %v", e.Kind, e.Tool, e.Err)
	}
	return fmt.Sprintf("tools: %s: %s", e.Kind, e.Tool)
}

func (e *ToolError) Unwrap() error { return e.Err }

const (
	// MaxToolNameLength bounds a tool name's length as defense-in-depth,
	// matching the teacher's own size-limit validation.
	MaxToolNameLength = 256
	// MaxToolParamsSize bounds the serialized size of tool call arguments.
	MaxToolParamsSize = 10 << 20
	// TruncateAt is the byte limit tool output is truncated to before
	// being sent back to the LLM (spec.md §4.4).
	TruncateAt = 65536
)

// TruncationSentinel is appended to a tool result that was truncated.
const TruncationSentinel = "\n...[truncated]"

// Tool is the capability contract a registered tool implements. Concrete
// tool implementations (shell, file I/O, web fetch) are external
// collaborators (spec.md §1); the registry only knows this shape.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args string, perms *models.UserPermissions) (string, error)
}

// Registry is the name→tool mapping with policy-gated dispatch.
// Internally synchronized; exposes an immutable-looking facade matching
// the teacher's concurrency idiom.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name (last-write-wins).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the OpenAI function-calling shaped schema for every
// registered tool, sorted by name for determinism.
func (r *Registry) Schemas() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(r.tools))
	for _, name := range sortedKeys(r.tools) {
		t := r.tools[name]
		out = append(out, models.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

func sortedKeys(m map[string]Tool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// allowed applies the spec.md §4.4 permission check: denylist wins over
// allowlist; a non-empty allowlist that doesn't contain name or "*"
// denies. zero_trust's default empty ToolAccess denies everything.
func allowed(name string, perms *models.UserPermissions) bool {
	if perms == nil {
		return true
	}
	for _, denied := range perms.ToolDenylist {
		if denied == name {
			return false
		}
	}
	if len(perms.ToolAccess) == 0 {
		return false
	}
	for _, a := range perms.ToolAccess {
		if a == name || a == "*" {
			return true
		}
	}
	return false
}

// Execute runs name with args, enforcing size limits and the permission
// check before dispatch. perms is cloned by the caller per-call to avoid
// aliasing across concurrent futures (spec.md §4.4); Execute itself does
// not mutate perms.
func (r *Registry) Execute(ctx context.Context, name, args string, perms *models.UserPermissions) (string, error) {
	if len(name) > MaxToolNameLength {
		return "", &ToolError{Kind: ErrInvalidArgs, Tool: name, Err: errors.New("tool name exceeds max length")}
	}
	if len(args) > MaxToolParamsSize {
		return "", &ToolError{Kind: ErrInvalidArgs, Tool: name, Err: errors.New("tool arguments exceed max size")}
	}

	t, ok := r.Get(name)
	if !ok {
		return "", &ToolError{Kind: ErrNotFound, Tool: name}
	}

	if !allowed(name, perms) {
		return "", &ToolError{Kind: ErrPermissionDenied, Tool: name}
	}

	out, err := t.Execute(ctx, args, perms)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ToolError{Kind: ErrTimeout, Tool: name, Err: err}
		}
		return "", &ToolError{Kind: ErrExecutionFailed, Tool: name, Err: err}
	}
	return truncate(out), nil
}

func truncate(s string) string {
	if len(s) <= TruncateAt {
		return s
	}
	return s[:TruncateAt] + TruncationSentinel
}
