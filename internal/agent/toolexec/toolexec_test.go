package toolexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/wizardd/internal/agent/citations"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

type fakeSearch struct {
	results []rag.Retrieval
	err     error
}

func (f *fakeSearch) Schema() llm.ToolSchema { return llm.ToolSchema{Name: "search"} }
func (f *fakeSearch) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	return f.results, f.err
}

type fakeResource struct {
	result *rag.ResourceToolResult
	err    error
}

func (f *fakeResource) Schema() llm.ToolSchema { return llm.ToolSchema{Name: "get_resources"} }
func (f *fakeResource) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	return f.result, f.err
}

func chunkCall(query string) models.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return models.ToolCall{ID: "call-1", Name: "search", Input: args}
}

func TestHandleToolCallsSearchAssignsDistinctCiteIDsPerResource(t *testing.T) {
	results := []rag.Retrieval{
		&rag.ChunkRetrieval{ResourceIDValue: "res-b", Start: 0, Text: "b text", ScoreValue: rag.Score{Rerank: 0.1}},
		&rag.ChunkRetrieval{ResourceIDValue: "res-a", Start: 10, Text: "a2 text", ScoreValue: rag.Score{Rerank: 0.9}},
		&rag.ChunkRetrieval{ResourceIDValue: "res-a", Start: 0, Text: "a1 text", ScoreValue: rag.Score{Rerank: 0.5}},
	}
	// The executor sorts the handler's slice in place, so keep handles on
	// the individual retrievals before the call.
	resB, resA10, resA0 := results[0], results[1], results[2]
	regs := map[string]Registration{
		"search": {Name: "search", Class: ClassSearch, Search: &fakeSearch{results: results}},
	}
	exec := New(regs, citations.New(), 0)

	var events []Event
	out, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{chunkCall("q")}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 tool message, got %d", len(out))
	}
	cites := out[0].Attrs.Citations
	if len(cites) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(cites))
	}
	// Sorted by (kind, resourceID, startIndex): res-a@0, res-a@10, res-b@0.
	// Cite ids dedup by resource id through the registry, so the two
	// res-a chunks share an id and res-b gets the next free one.
	ids := []int{cites[0].ID, cites[1].ID, cites[2].ID}
	if ids[0] != 1 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("expected cite ids 1,1,2 (res-a shared, res-b new), got %v", ids)
	}
	if resA0.CiteID() != 1 || resA10.CiteID() != 1 || resB.CiteID() != 2 {
		t.Fatalf("unexpected sort/cite assignment: %+v", results)
	}

	if len(events) != 3 {
		t.Fatalf("expected BOS/Delta/EOS events, got %d", len(events))
	}
	if events[0].Kind != EventBOS || events[1].Kind != EventDelta || events[2].Kind != EventEOS {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
}

func TestHandleToolCallsSearchReusesCiteIDAcrossCalls(t *testing.T) {
	firstCall := []rag.Retrieval{&rag.ChunkRetrieval{ResourceIDValue: "res-a", Text: "a"}}
	secondCall := []rag.Retrieval{
		&rag.ChunkRetrieval{ResourceIDValue: "res-b", Text: "b"},
		&rag.ChunkRetrieval{ResourceIDValue: "res-a", Text: "a again"},
	}
	reg := citations.New()
	exec := New(map[string]Registration{
		"search": {Name: "search", Class: ClassSearch, Search: &fakeSearch{results: firstCall}},
	}, reg, 0)
	out1, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{chunkCall("q1")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out1[0].Attrs.Citations[0].ID; got != 1 {
		t.Fatalf("expected first cite id 1, got %d", got)
	}

	exec.registrations["search"] = Registration{Name: "search", Class: ClassSearch, Search: &fakeSearch{results: secondCall}}
	out2, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{chunkCall("q2")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byLink := map[string]int{}
	for _, c := range out2[0].Attrs.Citations {
		byLink[c.Link] = c.ID
	}
	if byLink["res-a"] != 1 {
		t.Fatalf("expected res-a to reuse cite id 1, got %d", byLink["res-a"])
	}
	if byLink["res-b"] != 2 {
		t.Fatalf("expected res-b to mint cite id 2, got %d", byLink["res-b"])
	}
}

func TestHandleToolCallsUnknownFunctionIsFatal(t *testing.T) {
	exec := New(map[string]Registration{}, citations.New(), 0)
	_, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{{ID: "c1", Name: "missing", Input: json.RawMessage(`{}`)}}, nil)
	var unk ErrUnknownFunction
	if err == nil {
		t.Fatal("expected error")
	}
	if e, ok := err.(ErrUnknownFunction); ok {
		unk = e
	} else {
		t.Fatalf("expected ErrUnknownFunction, got %T: %v", err, err)
	}
	if string(unk) != "missing" {
		t.Fatalf("expected missing, got %s", unk)
	}
}

func TestHandleToolCallsBadArgumentsIsFatal(t *testing.T) {
	regs := map[string]Registration{
		"search": {Name: "search", Class: ClassSearch, Search: &fakeSearch{}},
	}
	exec := New(regs, citations.New(), 0)
	call := models.ToolCall{ID: "c1", Name: "search", Input: json.RawMessage(`not json`)}
	_, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{call}, nil)
	if _, ok := err.(ErrArgumentParse); !ok {
		t.Fatalf("expected ErrArgumentParse, got %T: %v", err, err)
	}
}

func TestHandleToolCallsResourceRegistersCiteIDs(t *testing.T) {
	result := &rag.ResourceToolResult{
		Success: true,
		Data: []rag.ResourceInfo{
			{ID: "res-1", Name: "Doc 1", ResourceType: "document", Content: "full text"},
		},
	}
	regs := map[string]Registration{
		"get_resources": {Name: "get_resources", Class: ClassResource, Resource: &fakeResource{result: result}},
	}
	reg := citations.New()
	exec := New(regs, reg, 0)

	call := models.ToolCall{ID: "c1", Name: "get_resources", Input: json.RawMessage(`{"resource_id":"res-1"}`)}
	out, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{call}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[0].Attrs.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(out[0].Attrs.Citations))
	}
	id, ok := reg.Get("res-1")
	if !ok || id != out[0].Attrs.Citations[0].ID {
		t.Fatalf("expected registry to hold matching cite id, got %d ok=%v", id, ok)
	}

	var payload struct {
		Data []struct {
			CiteID  int    `json:"cite_id"`
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out[0].Content), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Data[0].CiteID != id {
		t.Fatalf("expected payload cite_id %d, got %d", id, payload.Data[0].CiteID)
	}
	if payload.Data[0].Content != "full text" {
		t.Fatalf("expected content carried through, got %q", payload.Data[0].Content)
	}
}

func TestHandleToolCallsResourceRegistrationIsIdempotentAcrossCalls(t *testing.T) {
	result := &rag.ResourceToolResult{
		Success: true,
		Data:    []rag.ResourceInfo{{ID: "res-1", Name: "Doc 1"}},
	}
	regs := map[string]Registration{
		"get_resources": {Name: "get_resources", Class: ClassResource, Resource: &fakeResource{result: result}},
	}
	reg := citations.New()
	exec := New(regs, reg, 0)

	call := models.ToolCall{ID: "c1", Name: "get_resources", Input: json.RawMessage(`{}`)}
	out1, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{call}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out2, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{call}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out1[0].Attrs.Citations[0].ID != out2[0].Attrs.Citations[0].ID {
		t.Fatalf("expected idempotent cite id across calls for same resource")
	}
}

func TestHandleToolCallsPerCallTimeout(t *testing.T) {
	slow := &fakeSearch{}
	slow.err = context.DeadlineExceeded
	regs := map[string]Registration{
		"search": {Name: "search", Class: ClassSearch, Search: slow},
	}
	exec := New(regs, citations.New(), time.Nanosecond)
	_, err := exec.HandleToolCalls(context.Background(), []models.ToolCall{chunkCall("q")}, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
