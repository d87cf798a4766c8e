package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/wizardd/internal/agent"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// keepaliveInterval is the SSE heartbeat cadence that stops proxies from
// closing idle connections during long tool executions.
const keepaliveInterval = 15 * time.Second

// streamEvent is one SSE frame's JSON payload: response_type tags the
// frame ("bos", "delta", "eos", "error", "done").
type streamEvent struct {
	ResponseType string          `json:"response_type"`
	Role         models.Role     `json:"role,omitempty"`
	Content      string          `json:"content,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ChatHandler drains an agent.Loop turn and frames its Event stream as
// SSE (data: <json>\n\n, flushed per event, with a keepalive ticker for
// long tool executions).
type ChatHandler struct {
	loop   *agent.Loop
	logger *observability.Logger
}

// NewChatHandler builds a ChatHandler over loop.
func NewChatHandler(loop *agent.Loop, logger *observability.Logger) *ChatHandler {
	return &ChatHandler{loop: loop, logger: logger}
}

type chatRequest struct {
	ConversationID  string                 `json:"conversation_id"`
	Messages        []models.Message       `json:"messages,omitempty"` // prior transcript for multi-turn requests
	Query           string                 `json:"query"`
	Tools           []models.ToolSelection `json:"tools,omitempty"`
	EnableThinking  bool                   `json:"enable_thinking,omitempty"`
	MergeSearch     bool                   `json:"merge_search,omitempty"`
	CustomToolCall  bool                   `json:"custom_tool_call,omitempty"`
	Lang            string                 `json:"lang,omitempty"`

	// ForcePrivateSearch overrides the loop's first-turn private-search
	// short-circuit; absent means "auto".
	ForcePrivateSearch *bool `json:"force_private_search,omitempty"`
}

// ServeHTTP handles POST /chat/stream.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var writeMu sync.Mutex
	write := func(ev streamEvent) {
		body, err := json.Marshal(ev)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		fmt.Fprintf(w, "data: %s\n\n", body)
		fl.Flush()
	}

	ctx := r.Context()
	stopKeepalive := make(chan struct{})
	defer close(stopKeepalive)
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopKeepalive:
				return
			case <-ticker.C:
				writeMu.Lock()
				fmt.Fprint(w, ": keepalive\n\n")
				fl.Flush()
				writeMu.Unlock()
			}
		}
	}()

	events, err := h.loop.Run(ctx, agent.Request{
		ConversationID:     req.ConversationID,
		PriorTranscript:    req.Messages,
		Query:              req.Query,
		Tools:              req.Tools,
		EnableThinking:     req.EnableThinking,
		MergeSearch:        req.MergeSearch,
		CustomToolCall:     req.CustomToolCall,
		Lang:               req.Lang,
		ForcePrivateSearch: req.ForcePrivateSearch,
	})
	if err != nil {
		write(streamEvent{ResponseType: "error", Error: err.Error()})
		return
	}

	for ev := range events {
		switch ev.Kind {
		case agent.EventBOS:
			write(streamEvent{ResponseType: "bos", Role: ev.Role})
		case agent.EventDelta:
			frame := streamEvent{ResponseType: "delta", Role: ev.Role, Reasoning: ev.Reasoning}
			if ev.Message != nil {
				frame.Content = ev.Message.Content
			}
			write(frame)
		case agent.EventEOS:
			write(streamEvent{ResponseType: "eos", Role: ev.Role})
		case agent.EventError:
			msg := ""
			if ev.Err != nil {
				msg = ev.Err.Error()
				if h.logger != nil {
					h.logger.Error(ctx, "agent stream error", "error", ev.Err)
				}
			}
			write(streamEvent{ResponseType: "error", Error: msg})
		case agent.EventDone:
			write(streamEvent{ResponseType: "done"})
		}
	}
}
