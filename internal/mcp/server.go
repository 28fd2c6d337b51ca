package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// Server exposes a tools.Registry over the JSON-RPC 2.0 surface so a
// weft instance can itself act as an MCP server for another agent
// runtime ("weft mcp-server", spec.md §6). Unknown methods answer with
// MethodNotFound; tools.listChanged is always false since this server
// does not support live tool-set notifications.
type Server struct {
	registry *tools.Registry
	perms    *models.UserPermissions
	name     string
	version  string
	logger   *slog.Logger
}

// NewServer constructs a server over registry, authorizing every call
// with perms (typically an admin-level UserPermissions for a trusted
// local MCP peer).
func NewServer(registry *tools.Registry, perms *models.UserPermissions, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, perms: perms, name: name, version: version, logger: logger.With("component", "mcp_server")}
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is cancelled. Intended to
// be wired to stdin/stdout for "weft mcp-server".
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("mcp: malformed request line", "error", err)
			continue
		}
		resp := s.handle(ctx, req)
		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Warn("mcp: marshal response", "error", err)
			continue
		}
		if _, err := w.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("mcp: write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	var (
		result any
		err    error
	)
	switch req.Method {
	case "initialize":
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
		}
	case "tools/list":
		result = ToolsListResult{Tools: s.toolDescriptors()}
	case "tools/call":
		result, err = s.callTool(ctx, req.Params)
	default:
		resp.Error = &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
	if err != nil {
		resp.Error = &RPCError{Code: -32000, Message: err.Error()}
		return resp
	}
	raw, merr := json.Marshal(result)
	if merr != nil {
		resp.Error = &RPCError{Code: -32000, Message: merr.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

func (s *Server) toolDescriptors() []ToolDescriptor {
	names := s.registry.List()
	out := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		t, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, ToolDescriptor{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}

func (s *Server) callTool(ctx context.Context, params any) (ToolCallResult, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: marshal tools/call params: %w", err)
	}
	var p ToolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: decode tools/call params: %w", err)
	}
	out, err := s.registry.Execute(ctx, p.Name, p.Arguments, s.perms)
	if err != nil {
		return ToolCallResult{
			Content: []ToolContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return ToolCallResult{Content: []ToolContent{{Type: "text", Text: out}}}, nil
}
