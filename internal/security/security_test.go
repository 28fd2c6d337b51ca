package security

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeCommandValue(t *testing.T) {
	cases := []struct {
		in      string
		wantErr error
	}{
		{"", ErrEmptyValue},
		{"ls", nil},
		{"./script.sh", nil},
		{"-rf", ErrOptionInjection},
		{"rm; rm -rf /", ErrShellMetachar},
		{"echo \"hi\"", ErrQuoteChar},
		{"bad\nname", ErrControlChar},
		{"weird$name", ErrShellMetachar},
	}
	for _, c := range cases {
		_, err := SanitizeCommandValue(c.in)
		if c.wantErr == nil {
			assert.NoError(t, err, c.in)
		} else {
			assert.ErrorIs(t, err, c.wantErr, c.in)
		}
	}
}

func TestSanitizeArgs(t *testing.T) {
	require.NoError(t, SanitizeArgs([]string{"--flag", "value", "/path/to/file"}))
	require.Error(t, SanitizeArgs([]string{"ok", "bad;arg"}))
}

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f[host], nil
}

func TestCheckURLBlocksPrivate(t *testing.T) {
	resolver := fakeResolver{"internal.example": {{IP: net.ParseIP("10.0.0.5")}}}
	err := CheckURL(context.Background(), resolver, "http://internal.example/secret")
	assert.ErrorIs(t, err, ErrSSRFBlocked)
}

func TestCheckURLBlocksMetadataEndpoint(t *testing.T) {
	err := CheckURL(context.Background(), fakeResolver{}, "http://169.254.169.254/latest/meta-data")
	assert.ErrorIs(t, err, ErrSSRFBlocked)
}

func TestCheckURLAllowsPublic(t *testing.T) {
	resolver := fakeResolver{"example.com": {{IP: net.ParseIP("93.184.216.34")}}}
	err := CheckURL(context.Background(), resolver, "https://example.com/page")
	assert.NoError(t, err)
}

func TestCheckURLRejectsScheme(t *testing.T) {
	err := CheckURL(context.Background(), fakeResolver{}, "file:///etc/passwd")
	require.Error(t, err)
}

func TestConfinePath(t *testing.T) {
	root := "/workspaces/agent-1"
	p, err := ConfinePath(root, "notes/todo.md")
	require.NoError(t, err)
	assert.Equal(t, "/workspaces/agent-1/notes/todo.md", p)

	_, err = ConfinePath(root, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathEscape)

	_, err = ConfinePath(root, "/etc/passwd")
	assert.ErrorIs(t, err, ErrPathEscape)
}
