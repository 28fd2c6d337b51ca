package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ExecConfig configures concurrent tool execution. Grounded on the
// teacher's ToolExecConfig.
type ExecConfig struct {
	Concurrency    int
	PerToolTimeout time.Duration
}

// DefaultExecConfig matches the teacher's defaults.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

// EventFunc is a non-blocking lifecycle callback invoked during
// execution, never on the critical path of a tool call.
type EventFunc func(models.ToolEvent)

// Executor runs N tool calls from a single LLM turn concurrently,
// bounded by a semaphore, joining results in the original request order.
// Grounded on the teacher's ExecuteConcurrently.
type Executor struct {
	registry *Registry
	config   ExecConfig
}

// NewExecutor constructs an Executor, applying defaults for zero fields.
func NewExecutor(registry *Registry, config ExecConfig) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &Executor{registry: registry, config: config}
}

// ExecuteConcurrently constructs one future per tool call and awaits
// their joint completion, preserving the caller's ordering in the
// returned slice regardless of completion order. A tool failure produces
// a `{"error":...}` JSON result and does not cancel its siblings.
func (e *Executor) ExecuteConcurrently(ctx context.Context, calls []models.ToolCall, sessionID string, perms *models.UserPermissions, emit EventFunc) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = errorResult(tc.ID, "context canceled")
				return
			}

			// Each future gets its own permissions value to avoid aliasing
			// across concurrent goroutines even though the underlying data
			// is read-only.
			permsCopy := clonePerms(perms)

			emitEvent(emit, sessionID, tc, "tool_started", nil)

			callCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
			out, err := e.registry.Execute(callCtx, tc.Name, tc.Arguments, permsCopy)
			cancel()

			if err != nil {
				kind := "tool_failed"
				var toolErr *ToolError
				if errors.As(err, &toolErr) && toolErr.Kind == ErrTimeout {
					kind = "tool_timeout"
				}
				results[idx] = errorResultFromErr(tc.ID, err)
				emitEvent(emit, sessionID, tc, kind, map[string]any{"error": err.Error()})
				return
			}

			results[idx] = models.ToolResult{ToolCallID: tc.ID, Content: out}
			emitEvent(emit, sessionID, tc, "tool_completed", nil)
		}(i, call)
	}

	wg.Wait()
	return results
}

func clonePerms(p *models.UserPermissions) *models.UserPermissions {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ToolAccess = append([]string(nil), p.ToolAccess...)
	cp.ToolDenylist = append([]string(nil), p.ToolDenylist...)
	return &cp
}

func errorResult(id, msg string) models.ToolResult {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return models.ToolResult{ToolCallID: id, Content: string(b), IsError: true}
}

func errorResultFromErr(id string, err error) models.ToolResult {
	return errorResult(id, err.Error())
}

func emitEvent(emit EventFunc, sessionID string, call models.ToolCall, kind string, data map[string]any) {
	if emit == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	emit(models.ToolEvent{
		RuntimeEvent: models.RuntimeEvent{Kind: kind, SessionID: sessionID, Data: data, At: time.Now()},
		ToolCallID:   call.ID,
		ToolName:     call.Name,
	})
}
