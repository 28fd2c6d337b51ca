// Package routing implements the tiered router: permission resolution,
// tier selection, escalation, budget gating, fallback, and sliding-window
// rate limiting (spec.md §4.7). Grounded structurally on the teacher's
// internal/agent/routing/router.go (candidate-list + health-tracking
// shape) and internal/auth/profiles.go (layered-override/cooldown idiom)
// for the parts with no direct teacher analog.
package routing

import (
	"strings"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ResolvePermissions applies the spec.md §4.7 precedence, field-wise:
// built-in defaults, then global, then per-user, then per-channel
// override. Each later layer wins per-field only when it sets a
// non-zero value; zero-value fields fall through to the prior layer.
func ResolvePermissions(level models.PermissionLevel, global, perUser, perChannel *models.UserPermissions) models.UserPermissions {
	resolved := models.DefaultUserPermissions(level)
	for _, layer := range []*models.UserPermissions{global, perUser, perChannel} {
		if layer == nil {
			continue
		}
		mergeInto(&resolved, layer)
	}
	// A denied tool never appears in the effective allowlist, keeping
	// tool_denylist and tool_access disjoint after resolution.
	if len(resolved.ToolDenylist) > 0 && len(resolved.ToolAccess) > 0 {
		denied := make(map[string]struct{}, len(resolved.ToolDenylist))
		for _, d := range resolved.ToolDenylist {
			denied[d] = struct{}{}
		}
		kept := resolved.ToolAccess[:0]
		for _, a := range resolved.ToolAccess {
			if _, ok := denied[a]; !ok {
				kept = append(kept, a)
			}
		}
		resolved.ToolAccess = kept
	}
	return resolved
}

func mergeInto(dst *models.UserPermissions, src *models.UserPermissions) {
	if src.MaxTier != "" {
		dst.MaxTier = src.MaxTier
	}
	if len(src.ToolAccess) > 0 {
		// Copied, not aliased: the source is a shared config entry and
		// resolution compacts the allowlist in place further down.
		dst.ToolAccess = append([]string(nil), src.ToolAccess...)
	}
	if len(src.ToolDenylist) > 0 {
		// Denylist is additive: a more specific layer narrows further,
		// never silently clears an ancestor's denial.
		dst.ToolDenylist = append(append([]string(nil), dst.ToolDenylist...), src.ToolDenylist...)
	}
	if src.CostBudgetDailyUSD != 0 {
		dst.CostBudgetDailyUSD = src.CostBudgetDailyUSD
	}
	if src.CostBudgetMonthlyUSD != 0 {
		dst.CostBudgetMonthlyUSD = src.CostBudgetMonthlyUSD
	}
	if src.RateLimitPerMinute != 0 {
		dst.RateLimitPerMinute = src.RateLimitPerMinute
	}
	// EscalationAllowed is an explicit boolean: a present override layer
	// always replaces it with its own value. Level is not merged; it
	// comes from the level argument.
	dst.EscalationAllowed = src.EscalationAllowed
	if src.Extra != nil {
		if dst.Extra == nil {
			dst.Extra = map[string]any{}
		}
		for k, v := range src.Extra {
			dst.Extra[k] = v
		}
	}
}

// ConfigResolver resolves permissions from the routing.permissions
// config map, whose keys address the three override layers:
// "<level_name>" for global per-level defaults, "users.<user_id>" for
// per-user overrides, and "channels.<channel>" for per-channel
// overrides. Satisfies PermissionResolver.
type ConfigResolver struct {
	levels   map[string]models.UserPermissions
	users    map[string]models.UserPermissions
	channels map[string]models.UserPermissions
}

// NewConfigResolver splits the flat permissions map into its layers.
func NewConfigResolver(permissions map[string]models.UserPermissions) *ConfigResolver {
	r := &ConfigResolver{
		levels:   map[string]models.UserPermissions{},
		users:    map[string]models.UserPermissions{},
		channels: map[string]models.UserPermissions{},
	}
	for key, perms := range permissions {
		switch {
		case strings.HasPrefix(key, "users."):
			r.users[strings.TrimPrefix(key, "users.")] = perms
		case strings.HasPrefix(key, "channels."):
			r.channels[strings.TrimPrefix(key, "channels.")] = perms
		default:
			r.levels[key] = perms
		}
	}
	return r
}

// Resolve layers built-in defaults, the global entry for the sender's
// level, the per-user override, and the per-channel override, in that
// order — channel restrictions override per-user (spec.md §4.7).
func (r *ConfigResolver) Resolve(channel models.Channel, senderID string) models.UserPermissions {
	level := models.PermissionUser
	if senderID == "" {
		level = models.PermissionZeroTrust
	}
	var perUser *models.UserPermissions
	if p, ok := r.users[senderID]; ok && senderID != "" {
		perUser = &p
		// Zero is the unset level in a config entry; an entry that only
		// overrides max_tier must not silently demote to zero_trust.
		if p.Level != models.PermissionZeroTrust {
			level = p.Level
		}
	}
	var global *models.UserPermissions
	if p, ok := r.levels[level.String()]; ok {
		global = &p
	}
	var perChannel *models.UserPermissions
	if p, ok := r.channels[string(channel)]; ok {
		perChannel = &p
	}
	return ResolvePermissions(level, global, perUser, perChannel)
}

var _ PermissionResolver = (*ConfigResolver)(nil)
