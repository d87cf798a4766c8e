// Package agent implements the streaming conversational loop: it drives
// the LLM client turn by turn, hands tool calls to the tool executor,
// rehydrates citation state across turns, and emits a BOS/Delta/EOS/
// Error/Done event protocol for an HTTP (SSE) handler to drain.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/haasonsaas/wizardd/internal/agent/citations"
	"github.com/haasonsaas/wizardd/internal/agent/streamparse"
	"github.com/haasonsaas/wizardd/internal/agent/toolexec"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/internal/rag/rerank"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// DefaultPerToolTimeout bounds a single tool invocation when the loop is
// constructed without an explicit override.
const DefaultPerToolTimeout = 30 * time.Second

// EventKind tags one item of the loop's streamed output.
type EventKind int

const (
	EventBOS EventKind = iota
	EventDelta
	EventEOS
	EventError
	EventDone
)

// Event is one item of the agent's streamed response. Message/Reasoning
// are populated on EventDelta; Err is populated on EventError.
type Event struct {
	Kind      EventKind
	Role      models.Role
	Message   *models.Message
	Reasoning string
	Err       error
}

// Request is one call into Loop.Run: a full turn, or the first turn of a
// new conversation if PriorTranscript is empty.
type Request struct {
	ConversationID  string
	PriorTranscript []models.Message
	Query           string
	Tools           []models.ToolSelection
	EnableThinking  bool
	MergeSearch     bool
	CustomToolCall  bool
	Lang            string

	// ForcePrivateSearch overrides the loop's default force-search
	// short-circuit (see shouldForcePrivateSearch). nil keeps the
	// default ("auto", tied to !EnableThinking); a non-nil false value
	// disables the short-circuit unconditionally.
	ForcePrivateSearch *bool
}

// Loop runs the streaming agent turn-by-turn state machine described in
// §4.4: stream the model, execute any requested tools, repeat until the
// model produces a tool-call-free assistant message.
type Loop struct {
	client         llm.Client
	reranker       *rerank.Reranker
	registry       *rag.Registry
	systemPromptFn SystemPromptFunc
	perToolTimeout time.Duration
	metrics        *observability.Metrics
}

// New builds a Loop. systemPromptFn renders message 0 for a fresh
// conversation; pass DefaultSystemPrompt for the built-in template
// renderer.
func New(client llm.Client, reranker *rerank.Reranker, registry *rag.Registry, systemPromptFn SystemPromptFunc) *Loop {
	return &Loop{
		client:         client,
		reranker:       reranker,
		registry:       registry,
		systemPromptFn: systemPromptFn,
		perToolTimeout: DefaultPerToolTimeout,
	}
}

// SetPerToolTimeout overrides the per-tool-call deadline (default 30s).
func (l *Loop) SetPerToolTimeout(d time.Duration) { l.perToolTimeout = d }

// SetMetrics enables per-tool execution counters for every turn's executor.
func (l *Loop) SetMetrics(m *observability.Metrics) { l.metrics = m }

// Run starts the turn and returns a channel of Events, closed once a
// terminal Done or Error event has been sent.
func (l *Loop) Run(ctx context.Context, req Request) (<-chan Event, error) {
	events := make(chan Event, 16)
	go l.run(ctx, req, events)
	return events, nil
}

func (l *Loop) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)

	citeReg := citations.New()
	transcript := append([]models.Message(nil), req.PriorTranscript...)
	rehydrateCitations(citeReg, transcript)

	regs := l.buildRegistrations(req.Tools, req.MergeSearch)

	if len(transcript) == 0 {
		schemas := l.toolSchemas(regs)
		sysMsg := models.Message{
			Role:      models.RoleSystem,
			Content:   l.systemPromptFn(req.Lang, schemas, req.CustomToolCall),
			CreatedAt: time.Now(),
		}
		events <- Event{Kind: EventBOS, Role: models.RoleSystem}
		events <- Event{Kind: EventDelta, Role: models.RoleSystem, Message: &sysMsg}
		events <- Event{Kind: EventEOS, Role: models.RoleSystem}
		transcript = append(transcript, sysMsg)
	}

	if len(transcript) == 0 || transcript[len(transcript)-1].Role != models.RoleUser {
		userMsg := models.Message{
			Role:      models.RoleUser,
			Content:   req.Query,
			Attrs:     &models.MessageAttrs{ToolsSelected: req.Tools},
			CreatedAt: time.Now(),
		}
		l.preInvokePrivateSearch(ctx, &userMsg, regs, req)
		events <- Event{Kind: EventBOS, Role: models.RoleUser}
		events <- Event{Kind: EventDelta, Role: models.RoleUser, Message: &userMsg}
		events <- Event{Kind: EventEOS, Role: models.RoleUser}
		transcript = append(transcript, userMsg)
	}

	executor := toolexec.New(regs, citeReg, l.perToolTimeout)
	if l.metrics != nil {
		executor.SetMetrics(l.metrics)
	}

	for {
		last := transcript[len(transcript)-1]
		if last.Role == models.RoleAssistant && len(last.ToolCalls) == 0 {
			events <- Event{Kind: EventDone}
			return
		}

		var assistantMsg *models.Message
		if l.shouldForcePrivateSearch(transcript, req) {
			forcedName := "private_search"
			if req.MergeSearch {
				forcedName = "search"
			}
			msg := synthesizeForcedSearch(forcedName, req.Query)
			events <- Event{Kind: EventBOS, Role: models.RoleAssistant}
			events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Message: &msg}
			events <- Event{Kind: EventEOS, Role: models.RoleAssistant}
			assistantMsg = &msg
		} else {
			msg, err := l.streamPhase(ctx, transcript, regs, req, events)
			if err != nil {
				events <- Event{Kind: EventError, Err: err}
				events <- Event{Kind: EventDone}
				return
			}
			assistantMsg = msg
		}
		transcript = append(transcript, *assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			events <- Event{Kind: EventDone}
			return
		}

		toolMsgs, err := executor.HandleToolCalls(ctx, assistantMsg.ToolCalls, func(ev toolexec.Event) {
			events <- translateToolEvent(ev)
		})
		if err != nil {
			events <- Event{Kind: EventError, Err: err}
			events <- Event{Kind: EventDone}
			return
		}
		transcript = append(transcript, toolMsgs...)
	}
}

func translateToolEvent(ev toolexec.Event) Event {
	switch ev.Kind {
	case toolexec.EventBOS:
		return Event{Kind: EventBOS, Role: ev.Role}
	case toolexec.EventDelta:
		return Event{Kind: EventDelta, Role: ev.Role, Message: ev.Message}
	default:
		return Event{Kind: EventEOS, Role: ev.Role}
	}
}

// rehydrateCitations walks every message in an inbound transcript and
// reinstates the citation registry's resource<->cite-id mapping, so ids
// minted in a prior turn are never reassigned or collided with in this
// one.
func rehydrateCitations(reg *citations.Registry, transcript []models.Message) {
	for _, msg := range transcript {
		if msg.Attrs == nil {
			continue
		}
		for _, c := range msg.Attrs.Citations {
			reg.RegisterWithID(c.Link, c.ID)
		}
	}
}

// preInvokePrivateSearch synchronously runs any no-visible-resources
// private_search selection against the user's query and stashes the
// results as related-resource previews, without minting citations for
// them (they are not yet shown to the user; only used to bias the
// system-prompt injection built in streamPhase).
func (l *Loop) preInvokePrivateSearch(ctx context.Context, userMsg *models.Message, regs map[string]toolexec.Registration, req Request) {
	for _, sel := range req.Tools {
		if sel.Name != "private_search" || len(sel.VisibleResources) > 0 {
			continue
		}
		reg, ok := regs[sel.Name]
		if !ok || reg.Class != toolexec.ClassSearch {
			continue
		}
		results, err := reg.Search.Search(ctx, req.Query, sel)
		if err != nil {
			continue
		}
		for _, r := range results {
			userMsg.Attrs.RelatedResources = append(userMsg.Attrs.RelatedResources, r.ToCitation())
		}
	}
}

// shouldForcePrivateSearch reports whether this turn should skip the LLM
// call and synthesize a private_search tool call directly, mirroring the
// original's force_private_search_option default of "auto" (tied to
// !EnableThinking): the short-circuit only fires on the very first turn
// of a non-thinking conversation that has private_search selected.
func (l *Loop) shouldForcePrivateSearch(transcript []models.Message, req Request) bool {
	if req.ForcePrivateSearch != nil && !*req.ForcePrivateSearch {
		return false
	}
	if req.EnableThinking {
		return false
	}
	if len(transcript) != 2 {
		return false
	}
	if transcript[0].Role != models.RoleSystem || transcript[1].Role != models.RoleUser {
		return false
	}
	for _, t := range req.Tools {
		if t.Name == "private_search" {
			return true
		}
	}
	return false
}

func synthesizeForcedSearch(name, query string) models.Message {
	args, _ := json.Marshal(map[string]string{"query": query})
	return models.Message{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: uuid.NewString(), Name: name, Input: args},
		},
		CreatedAt: time.Now(),
	}
}

type pendingToolCall struct {
	id, name string
	args     strings.Builder
}

// streamPhase issues one LLM call, forwards its deltas as Events, and
// returns the completed assistant message once the stream closes.
func (l *Loop) streamPhase(ctx context.Context, transcript []models.Message, regs map[string]toolexec.Registration, req Request, events chan<- Event) (*models.Message, error) {
	wireMsgs := l.toWireMessages(transcript)

	var enableThinking *bool
	if req.EnableThinking {
		t := true
		enableThinking = &t
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	creq := llm.CompletionRequest{
		Messages:       wireMsgs,
		Tools:          l.toolSchemas(regs),
		EnableThinking: enableThinking,
		Headers:        carrier,
	}

	chunks, err := l.client.Complete(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("agent: llm complete: %w", err)
	}

	events <- Event{Kind: EventBOS, Role: models.RoleAssistant}

	var contentBuf, reasoningBuf, toolCallBuf strings.Builder
	var order []int
	byIndex := make(map[int]*pendingToolCall)

	var parser *streamparse.Parser
	if req.CustomToolCall {
		parser = streamparse.New()
	}

	for chunk := range chunks {
		switch chunk.Kind {
		case llm.ChunkError:
			return nil, fmt.Errorf("agent: stream error: %w", chunk.Err)
		case llm.ChunkReasoning:
			reasoningBuf.WriteString(chunk.Text)
			events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Reasoning: chunk.Text}
		case llm.ChunkContent:
			if parser != nil {
				for _, op := range parser.Feed(chunk.Text) {
					switch op.Kind {
					case streamparse.KindToolCall:
						toolCallBuf.WriteString(op.Delta)
					case streamparse.KindThink:
						reasoningBuf.WriteString(op.Delta)
						events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Reasoning: op.Delta}
					default:
						contentBuf.WriteString(op.Delta)
						events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Message: &models.Message{Role: models.RoleAssistant, Content: op.Delta}}
					}
				}
			} else {
				contentBuf.WriteString(chunk.Text)
				events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Message: &models.Message{Role: models.RoleAssistant, Content: chunk.Text}}
			}
		case llm.ChunkToolCallDelta:
			pc, ok := byIndex[chunk.ToolCallIndex]
			if !ok {
				pc = &pendingToolCall{}
				byIndex[chunk.ToolCallIndex] = pc
				order = append(order, chunk.ToolCallIndex)
			}
			if chunk.ToolCallID != "" {
				pc.id = chunk.ToolCallID
			}
			if chunk.ToolCallName != "" {
				pc.name = chunk.ToolCallName
			}
			pc.args.WriteString(chunk.ArgsDelta)
		case llm.ChunkDone:
		}
	}

	toolCalls := make([]models.ToolCall, 0, len(order))
	for _, idx := range order {
		pc := byIndex[idx]
		toolCalls = append(toolCalls, models.ToolCall{ID: pc.id, Name: pc.name, Input: json.RawMessage(pc.args.String())})
	}
	toolCalls = append(toolCalls, parseCustomToolCalls(toolCallBuf.String())...)

	assistantMsg := &models.Message{
		Role:      models.RoleAssistant,
		Content:   contentBuf.String(),
		Reasoning: reasoningBuf.String(),
		ToolCalls: toolCalls,
		CreatedAt: time.Now(),
	}

	events <- Event{Kind: EventDelta, Role: models.RoleAssistant, Message: assistantMsg}
	events <- Event{Kind: EventEOS, Role: models.RoleAssistant}

	return assistantMsg, nil
}

// parseCustomToolCalls reads the <tool_call> buffer as newline-delimited
// JSON objects of the form {"name": "...", "arguments": {...}}. A
// malformed line is a stream-decode error, not fatal to the turn: it is
// skipped.
func parseCustomToolCalls(buf string) []models.ToolCall {
	if strings.TrimSpace(buf) == "" {
		return nil
	}
	var calls []models.ToolCall
	scanner := bufio.NewScanner(strings.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var parsed struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		calls = append(calls, models.ToolCall{ID: uuid.NewString(), Name: parsed.Name, Input: parsed.Arguments})
	}
	return calls
}

// toWireMessages flattens the transcript into the LLM client's wire
// shape, injecting a synthetic system-role follow-up after each user
// message that serializes its selected/related resources as XML. This
// follow-up is built fresh on every call and never persisted.
func (l *Loop) toWireMessages(transcript []models.Message) []llm.WireMessage {
	out := make([]llm.WireMessage, 0, len(transcript)+1)
	for _, msg := range transcript {
		wm := llm.WireMessage{Role: string(msg.Role), Content: msg.Content, ToolCallID: msg.ToolCallID}
		for _, tc := range msg.ToolCalls {
			var wtc llm.WireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Input)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)

		if msg.Role == models.RoleUser {
			if xml := renderToolsXML(msg.Attrs); xml != "" {
				out = append(out, llm.WireMessage{Role: string(models.RoleSystem), Content: xml})
			}
		}
	}
	return out
}
