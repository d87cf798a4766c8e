package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteStreamsContentReasoningAndToolCalls(t *testing.T) {
	frames := []string{
		`{"choices":[{"delta":{"reasoning_content":"thinking..."}}]}`,
		`{"choices":[{"delta":{"content":"hello "}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"t1","function":{"name":"private_search","arguments":"{\"q\""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"x\"}"}}]}}]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Trace"); got != "abc" {
			t.Errorf("expected trace header propagated, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	client := NewOpenAICompatible(srv.URL, "test-key", "", "")
	chunks, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4o",
		Messages: []WireMessage{{Role: "user", Content: "hi"}},
		Headers:  map[string]string{"X-Trace": "abc"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	var gotReasoning, gotContent string
	var gotArgs string
	done := false
	for c := range chunks {
		switch c.Kind {
		case ChunkReasoning:
			gotReasoning += c.Text
		case ChunkContent:
			gotContent += c.Text
		case ChunkToolCallDelta:
			gotArgs += c.ArgsDelta
		case ChunkDone:
			done = true
		case ChunkError:
			t.Fatalf("unexpected error chunk: %v", c.Err)
		}
	}
	if !done {
		t.Fatal("expected a terminal ChunkDone")
	}
	if gotReasoning != "thinking..." {
		t.Fatalf("reasoning mismatch: %q", gotReasoning)
	}
	if gotContent != "hello " {
		t.Fatalf("content mismatch: %q", gotContent)
	}
	if gotArgs != `{"q":"x"}` {
		t.Fatalf("tool call args mismatch: %q", gotArgs)
	}
}

func TestCompleteUsesThinkingModelWhenEnabled(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		io.ReadFull(r.Body, body)
		gotModel = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewOpenAICompatible(srv.URL, "", "", "thinking-model-v2")
	enable := true
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:          "gpt-4o",
		Messages:       []WireMessage{{Role: "user", Content: "hi"}},
		EnableThinking: &enable,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !contains(gotModel, `"model":"thinking-model-v2"`) {
		t.Fatalf("expected thinking model substituted into request body, got %s", gotModel)
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
