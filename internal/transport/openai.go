package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// HTTPDoer is the HTTP capability this transport needs, satisfied by
// *http.Client and by the platform abstraction's HTTP() accessor.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAICompatConfig configures one OpenAI-compatible provider endpoint.
// BaseURL may point at any server speaking the /chat/completions wire
// protocol; empty means the upstream default.
type OpenAICompatConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	// HTTPClient routes requests through the caller's HTTP capability
	// (the platform abstraction in the composed runtime). Nil uses the
	// library default.
	HTTPClient HTTPDoer
	// RequestTimeout bounds a single Complete call. Zero means the
	// caller's context deadline alone applies.
	RequestTimeout time.Duration
}

// OpenAICompat speaks the OpenAI-compatible /chat/completions protocol,
// complete and streamed (SSE under the hood of the client library). It
// is the default concrete Transport.
type OpenAICompat struct {
	client *openai.Client
	config OpenAICompatConfig
}

// NewOpenAICompat constructs the transport. A missing API key is not an
// error at construction time: calls return NotConfiguredError, which the
// failover chain treats as an immediate advance to the next provider.
func NewOpenAICompat(cfg OpenAICompatConfig) *OpenAICompat {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	t := &OpenAICompat{config: cfg}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		t.client = openai.NewClientWithConfig(clientCfg)
	}
	return t
}

func (t *OpenAICompat) Name() string { return t.config.Name }

// Complete sends a non-streaming chat completion.
func (t *OpenAICompat) Complete(ctx context.Context, req models.ChatRequest) (Response, error) {
	if t.client == nil {
		return Response{}, &NotConfiguredError{Provider: t.config.Name}
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, t.buildRequest(req, false))
	if err != nil {
		return Response{}, t.classify(err, req.Model, time.Since(start))
	}
	if len(resp.Choices) == 0 {
		return Response{}, &InvalidResponseError{Reason: "no choices in completion response"}
	}

	return Response{
		Message:   fromOpenAIMessage(resp.Choices[0].Message),
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// CompleteStream streams the completion, invoking cb once per text
// chunk. Tool-call deltas are accumulated across chunks by index, the
// way the wire protocol fragments function.arguments.
func (t *OpenAICompat) CompleteStream(ctx context.Context, req models.ChatRequest, cb StreamCallback) (Response, error) {
	if t.client == nil {
		return Response{}, &NotConfiguredError{Provider: t.config.Name}
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	stream, err := t.client.CreateChatCompletionStream(ctx, t.buildRequest(req, true))
	if err != nil {
		return Response{}, t.classify(err, req.Model, time.Since(start))
	}
	defer stream.Close()

	var content strings.Builder
	toolCalls := map[int]*models.ToolCall{}
	maxIndex := -1
	tokensIn, tokensOut := 0, 0

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, t.classify(err, req.Model, time.Since(start))
		}
		if chunk.Usage != nil {
			tokensIn = chunk.Usage.PromptTokens
			tokensOut = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if err := cb(delta.Content); err != nil {
				return Response{}, err
			}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if index > maxIndex {
				maxIndex = index
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			toolCalls[index].Arguments += tc.Function.Arguments
		}
	}

	msg := models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   content.String(),
		CreatedAt: time.Now(),
	}
	for i := 0; i <= maxIndex; i++ {
		if tc := toolCalls[i]; tc != nil && tc.ID != "" {
			msg.ToolCalls = append(msg.ToolCalls, *tc)
		}
	}

	return Response{Message: msg, TokensIn: tokensIn, TokensOut: tokensOut}, nil
}

func (t *OpenAICompat) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.config.RequestTimeout)
}

func (t *OpenAICompat) buildRequest(req models.ChatRequest, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		out.Tools = toOpenAITools(req.Tools)
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

func toOpenAIMessages(messages []models.ConversationMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case models.RoleAssistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case models.RoleTool:
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) models.ConversationMessage {
	out := models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   m.Content,
		CreatedAt: time.Now(),
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func toOpenAITools(tools []models.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// classify maps a client-library error into the typed taxonomy. Only
// errors.As on the library's error types and status-code comparison are
// used — never the error's text.
func (t *OpenAICompat) classify(err error, model string, elapsed time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return t.classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, model)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return t.classifyStatus(reqErr.HTTPStatusCode, reqErr.Error(), model)
		}
		return &HTTPError{Underlying: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Elapsed: elapsed}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &HTTPError{Underlying: err}
}

func (t *OpenAICompat) classifyStatus(status int, body, model string) error {
	switch {
	case status == 401 || status == 403:
		return &AuthFailedError{Provider: t.config.Name}
	case status == 404:
		return &ModelNotFoundError{Model: model}
	case status == 429:
		return &RateLimitedError{}
	default:
		return &APIError{Status: status, Body: body}
	}
}

var _ Transport = (*OpenAICompat)(nil)
