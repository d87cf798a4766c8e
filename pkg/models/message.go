// Package models defines the wire- and domain-level data shapes shared
// between the agent loop, the tool executor and the worker subsystem.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type within a conversation transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation transcript.
//
// Attrs carries the side-channel metadata (citations, tool/resource
// selection, related resources) that must never leak into the text
// content sent to the model but must still round-trip across turns.
type Message struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	Reasoning  string          `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Attrs      *MessageAttrs   `json:"attrs,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MessageAttrs is the side-channel attached to a message, never rendered
// into the prompt text directly but read back to reconstruct agent state
// across turns (citation numbering, tool/resource selection).
type MessageAttrs struct {
	Citations        []Citation      `json:"citations,omitempty"`
	ToolsSelected    []ToolSelection `json:"tools_selected,omitempty"`
	RelatedResources []Citation      `json:"related_resources,omitempty"`
}

// ToolSelection names a tool made available for one conversation turn and,
// for resource-scoped tools, which resources it may see.
type ToolSelection struct {
	Name             string   `json:"name"`
	NamespaceID      string   `json:"namespace_id,omitempty"`
	VisibleResources []string `json:"visible_resources,omitempty"`
}

// Citation is a single numbered reference attached to a tool result.
type Citation struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Link        string    `json:"link"` // resource id, or URL for web sources
	Source      string    `json:"source"`
	NamespaceID string    `json:"namespace_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

