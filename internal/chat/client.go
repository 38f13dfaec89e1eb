// Package chat is the adapter boundary to chat-completion providers. The
// rollout engine only ever talks to a Client; retry of transient failures
// happens inside the adapter, not in orchestrators.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrel-evals/petrel/internal/models"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	// ErrRateLimited is transient; the adapter retries it internally.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrProviderUnavailable is retried a bounded number of times, then
	// surfaced as fatal.
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
	// ErrInvalidRequest is fatal immediately.
	ErrInvalidRequest ErrorKind = "invalid_request"
)

// Error is a classified adapter failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int // HTTP status when applicable
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("chat: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the adapter may retry the failed call.
func (e *Error) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrProviderUnavailable
}

// KindOf returns the classification of err, or "" when err is not an
// adapter error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// ToolChoice constrains how the model may respond when tools are declared.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// Request is one completion call. Temperature is a pointer so an explicit
// zero survives the trip to the wire; nil leaves the provider default.
type Request struct {
	Model           string
	System          string
	Messages        []models.Message
	MaxTokens       int
	Temperature     *float64
	ReasoningEffort models.ReasoningEffort
	Tools           []models.ToolSignature
	ToolChoice      ToolChoice
}

// Completion is a single assistant turn returned by the provider.
type Completion struct {
	Content   string
	Reasoning string
	ToolCalls []models.ToolCall
}

// Message converts the completion into an assistant message.
func (c *Completion) Message() models.Message {
	return models.Message{
		Role:      models.RoleAssistant,
		Content:   c.Content,
		Reasoning: c.Reasoning,
		ToolCalls: c.ToolCalls,
	}
}

// Client sends one message history to a model and returns its reply.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}
