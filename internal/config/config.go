// Package config defines the engine's single configuration struct tree
// and loads it from YAML or JSON with snake_case primary names (plus
// camelCase aliases), CLI > env > file precedence applied by the
// caller, and unknown fields ignored. Grounded on the teacher's
// internal/config (one Config struct, yaml tags, defaults applied in
// constructors) per SPEC_FULL.md §2.1.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Config is the top-level configuration tree (spec.md §6): agents,
// channels, providers, gateway, tools, routing, delegation, cron,
// mcp_servers. Every field carries a default applied by withDefaults.
type Config struct {
	Agents     AgentsConfig        `yaml:"agents" json:"agents"`
	Channels   ChannelsConfig      `yaml:"channels" json:"channels"`
	Providers  map[string]Provider `yaml:"providers" json:"providers"`
	Gateway    GatewayConfig       `yaml:"gateway" json:"gateway"`
	Tools      ToolsConfig         `yaml:"tools" json:"tools"`
	Routing    models.RoutingConfig `yaml:"routing" json:"routing"`
	Delegation DelegationConfig    `yaml:"delegation" json:"delegation"`
	Cron       CronConfig          `yaml:"cron" json:"cron"`
	MCPServers []MCPServerConfig   `yaml:"mcp_servers" json:"mcp_servers"`
	Logging    LoggingConfig       `yaml:"logging" json:"logging"`
}

// AgentsConfig configures the set of addressable agents and their
// shared defaults.
type AgentsConfig struct {
	Defaults AgentDefaults            `yaml:"defaults" json:"defaults"`
	Catalog  map[string]AgentConfig   `yaml:"catalog" json:"catalog"`
	Routes   []AgentRouteConfig       `yaml:"routes" json:"routes"`
	CatchAll string                   `yaml:"catch_all" json:"catch_all"`
}

// AgentDefaults is the fallback model and workspace root every agent
// inherits unless overridden.
type AgentDefaults struct {
	Model         string `yaml:"model" json:"model"`
	WorkspaceRoot string `yaml:"workspace_root" json:"workspace_root"`
}

// AgentConfig is one named agent's overrides.
type AgentConfig struct {
	Model       string          `yaml:"model,omitempty" json:"model,omitempty"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Handoffs    []HandoffConfig `yaml:"handoffs,omitempty" json:"handoffs,omitempty"`
}

// HandoffConfig is one inter-agent handoff rule: when a message to this
// agent matches the trigger, the response is followed by a handoff task
// sent to the target agent's inbox.
type HandoffConfig struct {
	To       string   `yaml:"to" json:"to"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Priority int      `yaml:"priority,omitempty" json:"priority,omitempty"`
	Context  string   `yaml:"context,omitempty" json:"context,omitempty"` // full, summary, none
}

// AgentRouteConfig is one entry in the ordered agent-routing rule list
// (spec.md §4.8).
type AgentRouteConfig struct {
	Channel       string `yaml:"channel" json:"channel"`
	SenderID      string `yaml:"sender_id,omitempty" json:"sender_id,omitempty"`
	ContentPrefix string `yaml:"content_prefix,omitempty" json:"content_prefix,omitempty"`
	AgentID       string `yaml:"agent_id" json:"agent_id"`
}

// ChannelsConfig enables/disables each channel transport. Concrete
// transports are out of scope (spec.md §1); this only records which
// ones the gateway should start.
type ChannelsConfig struct {
	Telegram ChannelEntry `yaml:"telegram" json:"telegram"`
	Slack    ChannelEntry `yaml:"slack" json:"slack"`
	Discord  ChannelEntry `yaml:"discord" json:"discord"`
	HTTP     ChannelEntry `yaml:"http" json:"http"`
}

// ChannelEntry is one channel's enable flag plus opaque settings.
type ChannelEntry struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Provider configures one LLM provider entry. APIKeyEnv names the
// environment variable holding the secret (spec.md §6: "provider
// secrets by name listed in provider config") — the secret value itself
// is never stored in the config struct.
type Provider struct {
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Models     []string `yaml:"models,omitempty" json:"models,omitempty"`
	Priority   int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// GatewayConfig controls the long-lived server mode.
type GatewayConfig struct {
	BusCapacity  int    `yaml:"bus_capacity" json:"bus_capacity"`
	OverflowPolicy string `yaml:"overflow_policy" json:"overflow_policy"`
}

// ToolsConfig bounds the tool executor.
type ToolsConfig struct {
	Concurrency    int           `yaml:"concurrency" json:"concurrency"`
	PerToolTimeout time.Duration `yaml:"per_tool_timeout" json:"per_tool_timeout"`
}

// DelegationConfig configures the delegation subsystem (spec.md §4.9).
type DelegationConfig struct {
	Rules        []DelegationRule `yaml:"rules" json:"rules"`
	FlowBinary   string           `yaml:"flow_binary,omitempty" json:"flow_binary,omitempty"`
	MaxDepth     int              `yaml:"max_depth" json:"max_depth"`
	Timeout      time.Duration    `yaml:"timeout" json:"timeout"`
}

// DelegationRule matches a task by regex to a fixed target.
type DelegationRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Target  string `yaml:"target" json:"target"`
}

// CronConfig is the list of scheduled jobs (spec.md §4.10).
type CronConfig struct {
	Jobs []CronJobConfig `yaml:"jobs" json:"jobs"`
}

// CronJobConfig is one scheduled job entry.
type CronJobConfig struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Schedule string         `yaml:"schedule" json:"schedule"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Payload  map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// MCPServerConfig describes one external MCP server to connect to.
type MCPServerConfig struct {
	ID        string   `yaml:"id" json:"id"`
	Transport string   `yaml:"transport" json:"transport"` // "stdio" or "socket"
	Command   string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string `yaml:"args,omitempty" json:"args,omitempty"`
	Address   string   `yaml:"address,omitempty" json:"address,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "json" or "text"
}

func (c Config) withDefaults() Config {
	if c.Agents.Defaults.Model == "" {
		c.Agents.Defaults.Model = "gpt-4o-mini"
	}
	if c.Agents.Defaults.WorkspaceRoot == "" {
		c.Agents.Defaults.WorkspaceRoot = "./workspaces"
	}
	if c.Routing.Mode == "" {
		c.Routing.Mode = models.RoutingModeStatic
	}
	if c.Routing.SelectionStrategy == "" {
		c.Routing.SelectionStrategy = models.StrategyPreferenceOrder
	}
	if c.Routing.Escalation.MaxEscalationTiers == 0 {
		c.Routing.Escalation.MaxEscalationTiers = 1
	}
	if c.Routing.RateLimiting.WindowSeconds == 0 {
		c.Routing.RateLimiting.WindowSeconds = 60
	}
	if c.Routing.RateLimiting.MaxTracked == 0 {
		c.Routing.RateLimiting.MaxTracked = 10000
	}
	if c.Gateway.BusCapacity == 0 {
		c.Gateway.BusCapacity = 256
	}
	if c.Gateway.OverflowPolicy == "" {
		c.Gateway.OverflowPolicy = "block_sender"
	}
	if c.Tools.Concurrency == 0 {
		c.Tools.Concurrency = 4
	}
	if c.Tools.PerToolTimeout == 0 {
		c.Tools.PerToolTimeout = 30 * time.Second
	}
	if c.Delegation.MaxDepth == 0 {
		c.Delegation.MaxDepth = 3
	}
	if c.Delegation.Timeout == 0 {
		c.Delegation.Timeout = 60 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return c
}

// knownSnakeKeys is the set of snake_case field names the Config tree
// declares, collected once from json struct tags. Alias normalization
// only rewrites a camelCase key whose snake_case form is in this set,
// so data-bearing map keys (agent IDs, provider names, permission
// subjects) are never touched.
var knownSnakeKeys = collectFieldKeys(reflect.TypeOf(Config{}))

func collectFieldKeys(root reflect.Type) map[string]bool {
	keys := map[string]bool{}
	seen := map[reflect.Type]bool{}
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Map {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct || seen[t] {
			return
		}
		seen[t] = true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag := strings.Split(f.Tag.Get("json"), ",")[0]
			if tag != "" && tag != "-" {
				keys[tag] = true
			}
			walk(f.Type)
		}
	}
	walk(root)
	return keys
}

// snakeCase converts a camelCase key to snake_case ("busCapacity" ->
// "bus_capacity"). Keys without uppercase letters come back unchanged.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeKeys rewrites camelCase aliases of known field names to
// their snake_case primary form, recursively. A key is rewritten only
// when its snake form is a declared field name and is not already
// present in the same map (an explicit snake_case key wins over its
// alias).
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key := k
			if s := snakeCase(k); s != k && knownSnakeKeys[s] {
				if _, explicit := t[s]; !explicit {
					key = s
				}
			}
			out[key] = normalizeKeys(val)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalizeKeys(item)
		}
		return t
	default:
		return v
	}
}

// Load reads path (YAML or JSON — YAML is a superset, so one parser
// covers both) and returns a Config with defaults applied. Keys are
// normalized so camelCase aliases of declared field names bind to
// their snake_case primaries, then the tree is decoded through the
// json tags. Unknown fields are ignored, matching spec.md §6.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	buf, err := json.Marshal(normalizeKeys(raw))
	if err != nil {
		return Config{}, fmt.Errorf("config: normalize %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// Default returns an empty Config with defaults applied, used when no
// config file is supplied (spec.md §6 resolution: CLI > env > file,
// with every field already carrying a #[default]-equivalent).
func Default() Config {
	return Config{}.withDefaults()
}

// ResolveSecret reads a provider's API key from the environment
// variable named by Provider.APIKeyEnv. Returns ("", false) if unset.
func ResolveSecret(p Provider) (string, bool) {
	if p.APIKeyEnv == "" {
		return "", false
	}
	return os.LookupEnv(p.APIKeyEnv)
}
