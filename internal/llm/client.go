// Package llm defines the consumed LLM chat-completion interface and an
// OpenAI-compatible streaming implementation. Tool schema conversion reuses
// github.com/sashabaranov/go-openai's function-calling types; the streaming
// transport is hand-rolled because the vendor extensions this spec relies on
// (extra_body.enable_thinking, reasoning_content deltas, custom trace
// headers) sit outside go-openai's typed client.
package llm

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// ToolSchema is one OpenAI-compatible function declaration offered to the
// model for this turn.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// AsOpenAITool converts a ToolSchema into go-openai's function-calling
// representation.
func (t ToolSchema) AsOpenAITool() openai.Tool {
	var params map[string]any
	if len(t.Parameters) > 0 {
		_ = json.Unmarshal(t.Parameters, &params)
	}
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}
}

// CompletionRequest is one streaming chat-completion call.
type CompletionRequest struct {
	Model          string
	Messages       []WireMessage
	Tools          []ToolSchema
	MaxTokens      int
	EnableThinking *bool // nil = unset, else vendor extra_body.enable_thinking
	Headers        map[string]string
}

// WireMessage is a transcript message already flattened to the chat API's
// wire shape (one entry per OpenAI-style message, tool results expanded to
// their own role="tool" entries upstream of this package).
type WireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []WireToolCall  `json:"tool_calls,omitempty"`
}

// WireToolCall is the OpenAI-compatible function-call shape on an assistant
// message.
type WireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChunkKind tags a streamed delta fragment.
type ChunkKind int

const (
	ChunkContent ChunkKind = iota
	ChunkReasoning
	ChunkToolCallDelta
	ChunkDone
	ChunkError
)

// Chunk is one item from a streaming completion. ToolCallIndex/ID/Name are
// only set on ChunkToolCallDelta, matching the vendor protocol where a tool
// call's id/type/name arrive once and its arguments arrive incrementally.
type Chunk struct {
	Kind          ChunkKind
	Text          string
	ToolCallIndex int
	ToolCallID    string
	ToolCallName  string
	ArgsDelta     string
	Err           error
}

// Client is the consumed LLM chat endpoint. ThinkingModel, if non-empty,
// names a dedicated model variant used instead of the vendor
// enable_thinking extension when the caller both enables thinking and a
// dedicated model is configured.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
	ThinkingModel() string
}
