package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompatible talks to any OpenAI-compatible /chat/completions
// streaming endpoint, including the reasoning_content/extra_body.
// enable_thinking extensions several self-hosted model servers add on top
// of the standard protocol.
type OpenAICompatible struct {
	BaseURL       string
	APIKey        string
	model         string
	thinkingModel string
	httpClient    *http.Client
}

// NewOpenAICompatible builds a client against baseURL (e.g.
// "https://api.openai.com/v1"). model is the default used when a request
// names none; thinkingModel, if set, is substituted whenever the caller
// requests thinking.
func NewOpenAICompatible(baseURL, apiKey, model, thinkingModel string) *OpenAICompatible {
	return &OpenAICompatible{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		model:         model,
		thinkingModel: thinkingModel,
		httpClient:    &http.Client{Timeout: 0},
	}
}

func (c *OpenAICompatible) ThinkingModel() string { return c.thinkingModel }

type wireRequest struct {
	Model      string                 `json:"model"`
	Messages   []WireMessage          `json:"messages"`
	Stream     bool                   `json:"stream"`
	MaxTokens  int                    `json:"max_tokens,omitempty"`
	Tools      []json.RawMessage      `json:"tools,omitempty"`
	ExtraBody  map[string]any         `json:"extra_body,omitempty"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete issues the streaming request and returns a channel of chunks,
// closed when the stream ends (ChunkDone) or fails (ChunkError).
func (c *OpenAICompatible) Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	usingThinkingModel := false
	if req.EnableThinking != nil && *req.EnableThinking && c.thinkingModel != "" {
		model = c.thinkingModel
		usingThinkingModel = true
	}

	body := wireRequest{
		Model:     model,
		Messages:  req.Messages,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	}
	for _, t := range req.Tools {
		raw, err := json.Marshal(t.AsOpenAITool())
		if err != nil {
			return nil, fmt.Errorf("llm: marshal tool %q: %w", t.Name, err)
		}
		body.Tools = append(body.Tools, raw)
	}
	if req.EnableThinking != nil && !usingThinkingModel {
		// No dedicated thinking model configured: request it via the
		// vendor extension instead.
		body.ExtraBody = map[string]any{"enable_thinking": *req.EnableThinking}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	chunks := make(chan Chunk)
	go c.consumeStream(resp.Body, chunks)
	return chunks, nil
}

func (c *OpenAICompatible) consumeStream(body interface{ Read([]byte) (int, error) }, chunks chan<- Chunk) {
	defer close(chunks)
	closer, ok := body.(interface{ Close() error })
	if ok {
		defer closer.Close()
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			chunks <- Chunk{Kind: ChunkDone}
			return
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			continue
		}
		if len(delta.Choices) == 0 {
			continue
		}
		d := delta.Choices[0].Delta
		if d.Content != "" {
			chunks <- Chunk{Kind: ChunkContent, Text: d.Content}
		}
		if d.ReasoningContent != "" {
			chunks <- Chunk{Kind: ChunkReasoning, Text: d.ReasoningContent}
		}
		for _, tc := range d.ToolCalls {
			chunks <- Chunk{
				Kind:          ChunkToolCallDelta,
				ToolCallIndex: tc.Index,
				ToolCallID:    tc.ID,
				ToolCallName:  tc.Function.Name,
				ArgsDelta:     tc.Function.Arguments,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		chunks <- Chunk{Kind: ChunkError, Err: err}
		return
	}
	chunks <- Chunk{Kind: ChunkDone}
}

var _ Client = (*OpenAICompatible)(nil)
