package models

// Role identifies the author position of a message within a chat history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ParticipantRole is the logical party in a rollout. The evaluator drives
// the conversation (and plays user/environment); the target is the model
// under test.
type ParticipantRole string

const (
	ParticipantEvaluator ParticipantRole = "evaluator"
	ParticipantTarget    ParticipantRole = "target"
)

// ReasoningEffort mirrors the provider-side reasoning knob.
type ReasoningEffort string

const (
	ReasoningNone   ReasoningEffort = ""
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// GenerationParams are the sampling settings for one role binding. A nil
// Temperature means "provider default"; an explicit 0 is a valid setting
// and is passed through to the provider.
type GenerationParams struct {
	Temperature     *float64        `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens       int             `yaml:"max_tokens" json:"max_tokens"`
	ReasoningEffort ReasoningEffort `yaml:"reasoning_effort,omitempty" json:"reasoning_effort,omitempty"`
}

// RoleBinding pairs a logical role with a model and its generation settings.
// Immutable for the lifetime of one rollout.
type RoleBinding struct {
	Role    ParticipantRole  `yaml:"role" json:"role"`
	ModelID string           `yaml:"model" json:"model_id"`
	Params  GenerationParams `yaml:",inline" json:"params"`
}

// ToolCall is a single tool invocation requested by the target.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one turn of dialogue. Tool-call requests are present only on
// assistant messages; ToolCallID/ToolName are present only on tool-result
// messages.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool result fields.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolError  bool   `json:"tool_error,omitempty"`
}

// Empty reports whether the message carries neither text nor tool calls.
func (m Message) Empty() bool {
	return m.Content == "" && len(m.ToolCalls) == 0
}
