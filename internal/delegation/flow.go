package delegation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/weave-logic-ai/weft/internal/security"
)

// FlowDelegator spawns the external Flow workflow binary to handle a
// delegated task. Unlike internal/mcp's client (which inherits the
// full process environment for trusted local MCP servers), Flow is an
// external workflow engine receiving arbitrary task text, so its
// subprocess is started with an explicit minimal environment — only
// PATH, HOME, and the named API key — rather than os.Environ()
// (spec.md §4.9's explicit no-inherit rule).
type FlowDelegator struct {
	binary    string
	apiKeyEnv string
	timeout   time.Duration
}

// NewFlowDelegator constructs a delegator invoking binary, forwarding
// the environment variable named apiKeyEnv (if set in the parent
// process) to the child under the same name.
func NewFlowDelegator(binary, apiKeyEnv string, timeout time.Duration) *FlowDelegator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FlowDelegator{binary: binary, apiKeyEnv: apiKeyEnv, timeout: timeout}
}

// Run executes the Flow binary with task as its sole argument,
// enforcing the configured timeout and killing the subprocess if it is
// exceeded.
func (f *FlowDelegator) Run(ctx context.Context, task string) (string, error) {
	if _, err := security.SanitizeCommandValue(f.binary); err != nil {
		return "", fmt.Errorf("delegation: unsafe flow binary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary, task)
	cmd.Env = f.childEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("delegation: flow timed out after %s: %w", f.timeout, ctx.Err())
		}
		return "", fmt.Errorf("delegation: flow failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// childEnv builds the explicit minimal environment: PATH, HOME, and
// the configured API key variable, nothing else.
func (f *FlowDelegator) childEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	if f.apiKeyEnv != "" {
		if v, ok := os.LookupEnv(f.apiKeyEnv); ok {
			env = append(env, f.apiKeyEnv+"="+v)
		}
	}
	return env
}
