package llm

import (
	"context"
	"errors"
)

// LLMProvider defines the interface for LLM providers
type LLMProvider interface {
	Complete(ctx context.Context, request *LLMRequest) (*LLMResponse, error)
}

// ErrMalformedResponse is returned when the provider answers with no
// usable output.
var ErrMalformedResponse = errors.New("malformed llm response")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of an exchange. Assistant messages may carry tool
// calls; tool messages answer exactly one call by ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model request to run one named tool. Arguments is nil when
// RawArguments is not a JSON object.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// ToolDef describes a tool offered to the model. Parameters is a JSON
// schema object.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// LLMRequest represents the structured request to LLM
type LLMRequest struct {
	Messages []Message
	Tools    []ToolDef
	// PreviousResponseID continues the exchange recorded under that
	// response, if the provider still has it.
	PreviousResponseID string
	// Persist keeps this exchange so a later request can continue it.
	// One-shot calls such as intent extraction leave it off.
	Persist     bool
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// LLMResponse represents the response from LLM
type LLMResponse struct {
	ID        string
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}
