package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/weave-logic-ai/weft/internal/memory"
	"github.com/weave-logic-ai/weft/internal/memory/embeddings"
	"github.com/weave-logic-ai/weft/internal/memory/vectorstore"
	"github.com/weave-logic-ai/weft/internal/sessions"
	"github.com/weave-logic-ai/weft/internal/skills"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// workspacePerm is the directory mode used for agent workspaces. The
// teacher's EnsureWorkspaceFiles uses 0o755; Weft tightens this to
// 0o700 since a workspace may hold per-agent credentials and memory
// content that other local users should never read.
const workspacePerm = 0o700

// bootstrapContent is the default content seeded into a new agent
// workspace's bootstrap files, adapted from the teacher's
// DefaultBootstrapFiles (trimmed to the five files spec.md §4.3 names;
// HEARTBEAT.md and MEMORY.md are channel/heartbeat concerns handled
// elsewhere, not bootstrap-prompt inputs).
var bootstrapContent = map[string]string{
	"SOUL.md": "# SOUL.md\n\nPersona and behavioral boundaries for this agent.\n",
	"IDENTITY.md": "# IDENTITY.md\n\n- Name:\n- Description:\n",
	"AGENTS.md": "# AGENTS.md\n\nWorkspace instructions and operating constraints.\n",
	"USER.md": "# USER.md\n\n- Preferred name:\n- Notes:\n",
	"TOOLS.md": "# TOOLS.md\n\nNotes on available tools and conventions.\n",
}

// AgentContext bundles the per-agent state constructed on first route
// to an agent: its isolated workspace, the session and memory stores
// rooted inside it, the gated skill set discovered under skills/, and
// the mtime-checked bootstrap-file cache feeding the system prompt.
type AgentContext struct {
	Workspace models.AgentWorkspace
	Sessions  sessions.Store
	Memory    *memory.Manager
	Skills    []models.Skill
	Bootstrap *memory.BootstrapCache
}

// bootstrapOrder fixes the order bootstrap files appear in the system
// prompt.
var bootstrapOrder = []string{"SOUL.md", "IDENTITY.md", "AGENTS.md", "USER.md", "TOOLS.md"}

// SystemPrompt assembles the agent's system prompt from its bootstrap
// files (served through the mtime cache, so an edited SOUL.md takes
// effect on the next message without a restart) and the prompt bodies
// of its always-on skills.
func (a *AgentContext) SystemPrompt() string {
	var parts []string
	for _, name := range bootstrapOrder {
		content, err := a.Bootstrap.Get(filepath.Join(a.Workspace.Root, name))
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(content))
	}
	for _, skill := range a.Skills {
		if !skill.Always {
			continue
		}
		body, err := skills.PromptBody(skill)
		if err != nil || strings.TrimSpace(body) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(body))
	}
	return strings.Join(parts, "\n\n")
}

// WorkspaceManager creates and caches per-agent workspaces under a
// shared root directory. Grounded on the teacher's
// internal/workspace.EnsureWorkspaceFiles (create-if-missing, never
// overwrite existing content).
type WorkspaceManager struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	cache    map[string]*AgentContext
	embedder embeddings.Embedder
	env      skills.EnvLookup
}

// NewWorkspaceManager constructs a manager rooted at root (e.g.
// "./workspaces"). embedder is shared across all agent memory managers;
// pass nil to use the default hash embedder.
func NewWorkspaceManager(root string, embedder embeddings.Embedder, logger *slog.Logger) *WorkspaceManager {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = embeddings.NewHashEmbedder(64)
	}
	return &WorkspaceManager{
		root:     root,
		logger:   logger,
		cache:    make(map[string]*AgentContext),
		embedder: embedder,
		env:      os.LookupEnv,
	}
}

// WithEnv replaces the environment lookup used for skill gating,
// letting the composed runtime route it through the platform's Env
// capability. Returns the manager for chaining at construction time.
func (w *WorkspaceManager) WithEnv(env skills.EnvLookup) *WorkspaceManager {
	if env != nil {
		w.env = env
	}
	return w
}

// EnsureAgentWorkspace returns the cached AgentContext for agentID,
// creating the workspace directory tree, default bootstrap files, and
// the per-agent session/memory stores on first call. Per spec.md §4.8
// the directory tree is created with 0700 permissions if absent.
func (w *WorkspaceManager) EnsureAgentWorkspace(ctx context.Context, agentID string) (*AgentContext, error) {
	w.mu.Lock()
	if existing, ok := w.cache[agentID]; ok {
		w.mu.Unlock()
		return existing, nil
	}
	w.mu.Unlock()

	agentRoot := filepath.Join(w.root, agentID)
	if err := os.MkdirAll(agentRoot, workspacePerm); err != nil {
		return nil, fmt.Errorf("agent: create workspace dir: %w", err)
	}

	if err := writeBootstrapFiles(agentRoot); err != nil {
		return nil, err
	}

	sessionsDir := filepath.Join(agentRoot, "sessions")
	sessionStore, err := sessions.NewFileStore(sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("agent: create session store: %w", err)
	}

	memoryDir := filepath.Join(agentRoot, "memory")
	store, err := vectorstore.New(agentID, filepath.Join(memoryDir, "vectors"))
	if err != nil {
		return nil, fmt.Errorf("agent: create vector store: %w", err)
	}
	memManager, err := memory.NewManager(memoryDir, w.embedder, store, memory.Config{}, w.logger)
	if err != nil {
		return nil, fmt.Errorf("agent: create memory manager: %w", err)
	}

	skillsDir := filepath.Join(agentRoot, "skills")
	if err := os.MkdirAll(skillsDir, workspacePerm); err != nil {
		return nil, fmt.Errorf("agent: create skills dir: %w", err)
	}
	discovered, skillErrs := skills.Discover(skillsDir)
	for _, serr := range skillErrs {
		w.logger.Warn("agent: skipping invalid skill", "agent_id", agentID, "error", serr)
	}
	gated := skills.FilterGated(discovered, w.env)

	agentCtx := &AgentContext{
		Workspace: models.AgentWorkspace{AgentID: agentID, Root: agentRoot},
		Sessions:  sessionStore,
		Memory:    memManager,
		Skills:    gated,
		Bootstrap: memory.NewBootstrapCache(),
	}

	w.mu.Lock()
	w.cache[agentID] = agentCtx
	w.mu.Unlock()

	w.logger.Info("agent: workspace ready", "agent_id", agentID, "root", agentRoot)
	return agentCtx, nil
}

func writeBootstrapFiles(root string) error {
	for name, content := range bootstrapContent {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("agent: stat %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return fmt.Errorf("agent: write %s: %w", path, err)
		}
	}
	return nil
}
