package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/petrel-evals/petrel/internal/models"
	"github.com/sethvargo/go-retry"
)

const (
	defaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	defaultTimeout     = 120 * time.Second
	defaultMaxAttempts = 4
	defaultBackoffBase = 500 * time.Millisecond
)

// HTTPConfig configures the OpenAI-compatible client. Any provider that
// speaks the chat-completions wire format works through BaseURL.
type HTTPConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// HTTPClient implements Client over the OpenAI-compatible chat-completions
// API. Transient failures (rate limits, provider outages) are retried here
// with exponential backoff; invalid requests surface immediately.
type HTTPClient struct {
	apiKey      string
	endpoint    string
	maxAttempts int
	client      *http.Client
}

// NewHTTPClient creates an adapter from config. An empty APIKey falls back
// to the OPENAI_API_KEY environment variable.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	endpoint := defaultEndpoint
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	return &HTTPClient{
		apiKey:      apiKey,
		endpoint:    endpoint,
		maxAttempts: attempts,
		client:      &http.Client{Timeout: timeout},
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model           string         `json:"model"`
	Messages        []wireMessage  `json:"messages"`
	MaxTokens       int            `json:"max_completion_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty"`
	Tools           []wireTool     `json:"tools,omitempty"`
	ToolChoice      string         `json:"tool_choice,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content          string         `json:"content"`
			ReasoningContent string         `json:"reasoning_content"`
			ToolCalls        []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the history and returns the assistant turn.
func (c *HTTPClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	body, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	var completion *Completion

	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(defaultBackoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		completion, err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		if kind := KindOf(err); kind == ErrRateLimited || kind == ErrProviderUnavailable {
			slog.Debug("retrying completion", "model", req.Model, "kind", kind)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: ErrProviderUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrProviderUnavailable, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &Error{Kind: ErrProviderUnavailable, Message: fmt.Sprintf("invalid response body: %v", err)}
	}
	if wire.Error != nil {
		return nil, &Error{Kind: ErrInvalidRequest, Message: wire.Error.Message}
	}
	if len(wire.Choices) == 0 {
		return nil, &Error{Kind: ErrProviderUnavailable, Message: "response contained no choices"}
	}

	msg := wire.Choices[0].Message
	completion := &Completion{
		Content:   msg.Content,
		Reasoning: msg.ReasoningContent,
	}
	for _, tc := range msg.ToolCalls {
		call := models.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				// Malformed arguments are preserved for the environment to
				// reject rather than dropped here.
				call.Arguments = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		completion.ToolCalls = append(completion.ToolCalls, call)
	}
	return completion, nil
}

func classifyStatus(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: ErrRateLimited, Message: msg, Status: status}
	case status >= 500:
		return &Error{Kind: ErrProviderUnavailable, Message: msg, Status: status}
	default:
		return &Error{Kind: ErrInvalidRequest, Message: msg, Status: status}
	}
}

func buildWireRequest(req *Request) wireRequest {
	wire := wireRequest{
		Model:           req.Model,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		ReasoningEffort: string(req.ReasoningEffort),
		ToolChoice:      string(req.ToolChoice),
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, wireMessage{Role: string(models.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			if tc.Arguments != nil {
				if args, err := json.Marshal(tc.Arguments); err == nil {
					wtc.Function.Arguments = string(args)
				}
			}
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wire.Messages = append(wire.Messages, wm)
	}

	for _, sig := range req.Tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = sig.Name
		wt.Function.Description = sig.Description
		wt.Function.Parameters = sig.ParameterSchema()
		wire.Tools = append(wire.Tools, wt)
	}

	return wire
}
