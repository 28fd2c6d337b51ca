package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/pkg/models"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAICompat) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tr := NewOpenAICompat(OpenAICompatConfig{
		Name:    "fake",
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
	})
	return srv, tr
}

func TestOpenAICompatNotConfigured(t *testing.T) {
	tr := NewOpenAICompat(OpenAICompatConfig{Name: "empty"})
	_, err := tr.Complete(context.Background(), models.ChatRequest{Model: "m"})
	var notConfigured *NotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	require.Equal(t, "empty", notConfigured.Provider)
}

func TestOpenAICompatCompleteParsesMessageAndUsage(t *testing.T) {
	_, tr := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-test", req["model"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello back"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 2}
		}`)
	})

	resp, err := tr.Complete(context.Background(), models.ChatRequest{
		Model:    "gpt-test",
		Messages: []models.ConversationMessage{{Role: models.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello back", resp.Message.Content)
	require.Equal(t, 7, resp.TokensIn)
	require.Equal(t, 2, resp.TokensOut)
}

func TestOpenAICompatCompleteParsesToolCalls(t *testing.T) {
	_, tr := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {
				"role": "assistant",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\":\"a\"}"}}]
			}}]
		}`)
	})

	resp, err := tr.Complete(context.Background(), models.ChatRequest{Model: "gpt-test"})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	require.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	require.Equal(t, "read_file", resp.Message.ToolCalls[0].Name)
	require.JSONEq(t, `{"path":"a"}`, resp.Message.ToolCalls[0].Arguments)
}

func apiErrorBody(status int) string {
	return fmt.Sprintf(`{"error": {"message": "failure %d", "type": "test_error"}}`, status)
}

func TestOpenAICompatClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{401, func(t *testing.T, err error) {
			var e *AuthFailedError
			require.ErrorAs(t, err, &e)
		}},
		{404, func(t *testing.T, err error) {
			var e *ModelNotFoundError
			require.ErrorAs(t, err, &e)
			require.Equal(t, "gpt-test", e.Model)
		}},
		{429, func(t *testing.T, err error) {
			var e *RateLimitedError
			require.ErrorAs(t, err, &e)
			require.True(t, IsRetryable(err))
		}},
		{500, func(t *testing.T, err error) {
			var e *APIError
			require.ErrorAs(t, err, &e)
			require.Equal(t, 500, e.Status)
			require.True(t, IsRetryable(err))
		}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			_, tr := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, apiErrorBody(tt.status))
			})
			_, err := tr.Complete(context.Background(), models.ChatRequest{Model: "gpt-test"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOpenAICompatStreamAccumulatesChunks(t *testing.T) {
	_, tr := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo, world"}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var got []string
	resp, err := tr.CompleteStream(context.Background(), models.ChatRequest{Model: "gpt-test"}, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo, world"}, got)
	require.Equal(t, "Hello, world", resp.Message.Content)
}

func TestOpenAICompatStreamAssemblesToolCallFragments(t *testing.T) {
	_, tr := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"read_file","arguments":"{\"pa"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"th\":\"a\"}"}}]}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	resp, err := tr.CompleteStream(context.Background(), models.ChatRequest{Model: "gpt-test"}, func(string) error { return nil })
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	require.Equal(t, "call_9", resp.Message.ToolCalls[0].ID)
	require.JSONEq(t, `{"path":"a"}`, resp.Message.ToolCalls[0].Arguments)
}

// Streaming failover does not retract a failed provider's partial
// output from the callback, which keeps every chunk it was handed; the
// returned response carries the succeeding provider's text alone.
func TestStreamingFailoverResponseCarriesOnlySucceedingOutput(t *testing.T) {
	var calls atomic.Int32
	_, flaky := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		// Connection drops mid-stream; the client sees a transport error.
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	})
	_, healthy := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello, world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chain := NewFailoverChain([]Transport{flaky, healthy}, RetryConfig{MaxRetries: 0, BaseDelay: 1, MaxDelay: 1}, nil)

	var acc string
	resp, err := chain.CompleteStream(context.Background(), models.ChatRequest{Model: "gpt-test"}, func(chunk string) error {
		acc += chunk
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hello, world", resp.Message.Content)
	require.GreaterOrEqual(t, calls.Load(), int32(1))
	// The raw callback saw the duplicate prefix; the response carries
	// only the succeeding provider's clean output.
	require.Contains(t, acc, "Hello, world")
}
