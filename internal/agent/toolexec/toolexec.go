// Package toolexec executes the tool calls an assistant turn requested,
// in declaration order, against a resolved set of search/resource
// handlers, assigning citation ids and building the tool-role transcript
// messages the next model turn consumes.
package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haasonsaas/wizardd/internal/agent/citations"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// ToolClass discriminates how a registered tool's result is shaped: a
// search tool returns a sorted, cited <retrievals> block; a resource tool
// returns a JSON payload with cite_ids substituted for resource_ids.
type ToolClass int

const (
	ClassSearch ToolClass = iota
	ClassResource
)

// Registration binds one tool name to its class and concrete handler for
// the lifetime of a single turn. Exactly one of Search/Resource is set.
type Registration struct {
	Name      string
	Class     ToolClass
	Search    rag.SearchHandler
	Resource  rag.ResourceHandler
	Selection models.ToolSelection
}

// ErrUnknownFunction is returned when a tool call names a function with
// no matching registration.
type ErrUnknownFunction string

func (e ErrUnknownFunction) Error() string { return fmt.Sprintf("toolexec: unknown function %q", string(e)) }

// ErrToolTimeout is returned when a single tool invocation exceeds its
// per-call deadline.
type ErrToolTimeout string

func (e ErrToolTimeout) Error() string { return fmt.Sprintf("toolexec: tool %q timed out", string(e)) }

// ErrArgumentParse is returned when a tool call's arguments fail to
// unmarshal against the handler's expected shape.
type ErrArgumentParse struct {
	CallID string
	Name   string
	Err    error
}

func (e ErrArgumentParse) Error() string {
	return fmt.Sprintf("toolexec: %s (call %s): parse arguments: %v", e.Name, e.CallID, e.Err)
}

func (e ErrArgumentParse) Unwrap() error { return e.Err }

// EventKind tags one item of the executor's streamed output.
type EventKind int

const (
	EventBOS EventKind = iota
	EventDelta
	EventEOS
)

// Event is one item the executor emits while running a batch of tool
// calls, mirroring the BOS/Delta/EOS shape of the outer agent event
// protocol without depending on the agent package (which depends on this
// one).
type Event struct {
	Kind    EventKind
	Role    models.Role
	Message *models.Message
}

// Sink receives Events as HandleToolCalls produces them. It must not
// block for long; the executor calls it synchronously between tool
// invocations.
type Sink func(Event)

// Executor runs tool calls against a fixed set of per-turn registrations.
type Executor struct {
	registrations map[string]Registration
	registry      *citations.Registry
	perCallTimeout time.Duration
	metrics       *observability.Metrics
}

// New builds an Executor. registrations is keyed by tool name; reg is the
// conversation's citation registry, shared across turns. A zero
// perCallTimeout disables the per-call deadline.
func New(registrations map[string]Registration, reg *citations.Registry, perCallTimeout time.Duration) *Executor {
	return &Executor{registrations: registrations, registry: reg, perCallTimeout: perCallTimeout}
}

// SetMetrics enables per-tool execution counters on this executor.
func (e *Executor) SetMetrics(m *observability.Metrics) { e.metrics = m }

func (e *Executor) recordExecution(name string, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil:
	case errors.As(err, new(ErrToolTimeout)):
		status = "timeout"
	default:
		status = "error"
	}
	e.metrics.RecordToolExecution(name, status, elapsed.Seconds())
}

// resourceCiteResult is the JSON shape emitted for a resource-class tool
// call: each ResourceInfo with resource_id replaced by its allocated
// cite_id.
type resourceCiteResult struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	Hint    string               `json:"hint,omitempty"`
	Data    []resourceCiteRecord `json:"data,omitempty"`
}

type resourceCiteRecord struct {
	CiteID       int                `json:"cite_id"`
	Name         string             `json:"name"`
	ResourceType string             `json:"resource_type"`
	NamespaceID  string             `json:"namespace_id,omitempty"`
	ParentID     string             `json:"parent_id,omitempty"`
	Content      string             `json:"content,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Tags         []map[string]any   `json:"tags,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
}

// HandleToolCalls runs calls in order against the executor's
// registrations and returns the tool-role messages to append to the
// transcript. Citation ids for both search and resource results come
// from the shared registry (already rehydrated from the full prior
// transcript by the caller), so a resource cited in an earlier turn, or
// by an earlier call within this same batch, keeps its id no matter how
// many times it resurfaces.
func (e *Executor) HandleToolCalls(ctx context.Context, calls []models.ToolCall, sink Sink) ([]models.Message, error) {
	out := make([]models.Message, 0, len(calls))
	for _, call := range calls {
		if sink != nil {
			sink(Event{Kind: EventBOS, Role: models.RoleTool})
		}

		started := time.Now()
		msg, err := e.invoke(ctx, call)
		e.recordExecution(call.Name, err, time.Since(started))
		if err != nil {
			return out, err
		}

		if sink != nil {
			sink(Event{Kind: EventDelta, Role: models.RoleTool, Message: msg})
			sink(Event{Kind: EventEOS, Role: models.RoleTool})
		}
		out = append(out, *msg)
	}
	return out, nil
}

// invoke runs a single tool call and returns its result message.
func (e *Executor) invoke(ctx context.Context, call models.ToolCall) (*models.Message, error) {
	reg, ok := e.registrations[call.Name]
	if !ok {
		return nil, ErrUnknownFunction(call.Name)
	}

	callCtx := ctx
	cancel := func() {}
	if e.perCallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.perCallTimeout)
	}
	defer cancel()

	switch reg.Class {
	case ClassSearch:
		return e.invokeSearch(callCtx, reg, call)
	case ClassResource:
		return e.invokeResource(callCtx, reg, call)
	default:
		return nil, fmt.Errorf("toolexec: %q registered with unknown class", call.Name)
	}
}

type searchArgs struct {
	Query string `json:"query"`
}

func (e *Executor) invokeSearch(ctx context.Context, reg Registration, call models.ToolCall) (*models.Message, error) {
	var args searchArgs
	if err := json.Unmarshal(call.Input, &args); err != nil {
		return nil, ErrArgumentParse{CallID: call.ID, Name: call.Name, Err: err}
	}

	results, err := reg.Search.Search(ctx, args.Query, reg.Selection)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrToolTimeout(call.Name)
		}
		return nil, fmt.Errorf("toolexec: %s: %w", call.Name, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		if a.ResourceID() != b.ResourceID() {
			return a.ResourceID() < b.ResourceID()
		}
		if a.StartIndex() != b.StartIndex() {
			return a.StartIndex() < b.StartIndex()
		}
		return a.Score().Rerank > b.Score().Rerank
	})

	// Citation ids dedup on the citation's link (resource id, or URL for
	// web results) through the shared registry — the same key
	// rehydrateCitations reads back out of a prior turn's transcript —
	// so a resource or page re-surfaced by a later search keeps the id
	// it was first assigned rather than minting a new one.
	citationsOut := make([]models.Citation, 0, len(results))
	for _, r := range results {
		c := r.ToCitation()
		c.ID = e.registry.Register(c.Link)
		r.SetCiteID(c.ID)
		citationsOut = append(citationsOut, c)
	}

	msg := &models.Message{
		Role:       models.RoleTool,
		Content:    rag.RetrievalsToPrompt(results),
		ToolCallID: call.ID,
		Attrs:      &models.MessageAttrs{Citations: citationsOut},
		CreatedAt:  time.Now(),
	}
	return msg, nil
}

func (e *Executor) invokeResource(ctx context.Context, reg Registration, call models.ToolCall) (*models.Message, error) {
	result, err := reg.Resource.Invoke(ctx, call.Input, reg.Selection)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrToolTimeout(call.Name)
		}
		return nil, fmt.Errorf("toolexec: %s: %w", call.Name, err)
	}

	citationsOut := make([]models.Citation, 0, len(result.Data))
	records := make([]resourceCiteRecord, 0, len(result.Data))
	for _, info := range result.Data {
		cid := e.registry.Register(info.ID)
		citationsOut = append(citationsOut, models.Citation{
			ID:     cid,
			Title:  info.Name,
			Link:   info.ID,
			Source: "private",
		})
		rec := resourceCiteRecord{
			CiteID:       cid,
			Name:         info.Name,
			ResourceType: info.ResourceType,
			NamespaceID:  info.NamespaceID,
			ParentID:     info.ParentID,
			Tags:         info.Tags,
			UpdatedAt:    info.UpdatedAt,
		}
		if result.MetadataOnly {
			rec.Summary = info.Summary
		} else {
			rec.Content = info.Content
		}
		records = append(records, rec)
	}

	payload, err := json.Marshal(resourceCiteResult{
		Success: result.Success,
		Error:   result.Error,
		Hint:    result.Hint,
		Data:    records,
	})
	if err != nil {
		return nil, fmt.Errorf("toolexec: %s: marshal result: %w", call.Name, err)
	}

	msg := &models.Message{
		Role:       models.RoleTool,
		Content:    string(payload),
		ToolCallID: call.ID,
		Attrs:      &models.MessageAttrs{Citations: citationsOut},
		CreatedAt:  time.Now(),
	}
	return msg, nil
}
