package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weave-logic-ai/weft/pkg/models"
)

type echoTool struct{ name string }

func (e echoTool) Name() string               { return e.name }
func (e echoTool) Description() string        { return "echoes input" }
func (e echoTool) Schema() map[string]any      { return map[string]any{"type": "object"} }
func (e echoTool) Execute(ctx context.Context, args string, perms *models.UserPermissions) (string, error) {
	return args, nil
}

func TestRegistryDenylistWinsOverAllowlist(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "shell"})

	perms := &models.UserPermissions{ToolAccess: []string{"*"}, ToolDenylist: []string{"shell"}}
	_, err := r.Execute(context.Background(), "shell", "{}", perms)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, ErrPermissionDenied, te.Kind)
}

func TestRegistryZeroTrustDeniesByDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "shell"})
	perms := &models.UserPermissions{Level: models.PermissionZeroTrust}
	_, err := r.Execute(context.Background(), "shell", "{}", perms)
	require.Error(t, err)
}

func TestRegistryTruncatesOutput(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "big"})
	huge := strings.Repeat("x", TruncateAt+10)
	out, err := r.Execute(context.Background(), "big", huge, nil)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, TruncationSentinel))
	require.Equal(t, TruncateAt+len(TruncationSentinel), len(out))
}

func TestRegistryListAndSchemasSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "zeta"})
	r.Register(echoTool{name: "alpha"})
	require.Equal(t, []string{"alpha", "zeta"}, r.List())
	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	require.Equal(t, "alpha", schemas[0].Name)
}
