package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/pkg/models"
)

func TestResolvePermissionsFieldWisePrecedence(t *testing.T) {
	global := &models.UserPermissions{MaxTier: "standard", RateLimitPerMinute: 10}
	perUser := &models.UserPermissions{MaxTier: "premium"}
	perChannel := &models.UserPermissions{RateLimitPerMinute: 2}

	resolved := ResolvePermissions(models.PermissionUser, global, perUser, perChannel)

	// Channel layer wins rate limit; user layer wins max_tier since the
	// channel layer leaves it unset.
	require.Equal(t, "premium", resolved.MaxTier)
	require.Equal(t, 2, resolved.RateLimitPerMinute)
	require.Equal(t, models.PermissionUser, resolved.Level)
}

func TestResolvePermissionsDenylistDisjointFromAccess(t *testing.T) {
	global := &models.UserPermissions{ToolAccess: []string{"read_file", "shell", "web_fetch"}}
	perChannel := &models.UserPermissions{ToolDenylist: []string{"shell"}}

	resolved := ResolvePermissions(models.PermissionUser, global, nil, perChannel)

	require.NotContains(t, resolved.ToolAccess, "shell")
	require.Contains(t, resolved.ToolDenylist, "shell")
	require.ElementsMatch(t, []string{"read_file", "web_fetch"}, resolved.ToolAccess)
}

func TestResolvePermissionsDenylistAccumulatesAcrossLayers(t *testing.T) {
	global := &models.UserPermissions{ToolDenylist: []string{"shell"}}
	perUser := &models.UserPermissions{ToolDenylist: []string{"web_fetch"}}

	resolved := ResolvePermissions(models.PermissionAdmin, global, perUser, nil)
	require.Contains(t, resolved.ToolDenylist, "shell")
	require.Contains(t, resolved.ToolDenylist, "web_fetch")
}

func TestResolvePermissionsZeroTrustDefaultHasNoTools(t *testing.T) {
	resolved := ResolvePermissions(models.PermissionZeroTrust, nil, nil, nil)
	require.Empty(t, resolved.ToolAccess)
	require.False(t, resolved.EscalationAllowed)
}
