package agent

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/haasonsaas/wizardd/internal/agent/toolexec"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/internal/rag/rerank"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// mergedSearchHandler presents several underlying search handlers to the
// model as a single "search" tool, fanning a query out to all of them via
// rag.MergeSearch.
type mergedSearchHandler struct {
	schema   llm.ToolSchema
	handlers []rag.SearchHandler
}

func (m *mergedSearchHandler) Schema() llm.ToolSchema { return m.schema }

func (m *mergedSearchHandler) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	return rag.MergeSearch(ctx, m.handlers, query, sel)
}

// rerankingSearchHandler wraps a search handler so every result set is
// reranked through the configured endpoint before it reaches the tool
// executor's sort/cite step.
type rerankingSearchHandler struct {
	inner    rag.SearchHandler
	reranker *rerank.Reranker
}

func (r *rerankingSearchHandler) Schema() llm.ToolSchema { return r.inner.Schema() }

func (r *rerankingSearchHandler) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	results, err := r.inner.Search(ctx, query, sel)
	if err != nil {
		return nil, err
	}
	return r.reranker.Rerank(ctx, query, results, 0, 0)
}

var mergedSearchSchema = llm.ToolSchema{
	Name:        "search",
	Description: "Search across every configured source for this conversation.",
	Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
}

// buildRegistrations resolves each requested tool selection against the
// loop's rag.Registry and binds it into a toolexec.Registration. When
// mergeSearch is set, every resolved search handler collapses into one
// synthetic "search" registration instead of one registration per name.
func (l *Loop) buildRegistrations(tools []models.ToolSelection, mergeSearch bool) map[string]toolexec.Registration {
	regs := make(map[string]toolexec.Registration, len(tools))

	var searchHandlers []rag.SearchHandler
	var searchSel models.ToolSelection
	haveSearchSel := false

	for _, sel := range tools {
		search, resource, _, ok := l.registry.Resolve(sel.Name, sel)
		if !ok {
			continue
		}
		switch {
		case search != nil:
			searchHandlers = append(searchHandlers, search)
			if !haveSearchSel {
				searchSel = sel
				haveSearchSel = true
			}
			if !mergeSearch {
				regs[sel.Name] = toolexec.Registration{
					Name:      sel.Name,
					Class:     toolexec.ClassSearch,
					Search:    &rerankingSearchHandler{inner: search, reranker: l.reranker},
					Selection: sel,
				}
			}
		case resource != nil:
			regs[sel.Name] = toolexec.Registration{
				Name:      sel.Name,
				Class:     toolexec.ClassResource,
				Resource:  resource,
				Selection: sel,
			}
		}
	}

	if mergeSearch && len(searchHandlers) > 0 {
		merged := &mergedSearchHandler{schema: mergedSearchSchema, handlers: searchHandlers}
		regs["search"] = toolexec.Registration{
			Name:      "search",
			Class:     toolexec.ClassSearch,
			Search:    &rerankingSearchHandler{inner: merged, reranker: l.reranker},
			Selection: searchSel,
		}
	}

	return regs
}

// toolSchemas returns every registered tool's schema, sorted by name so the
// rendered system prompt is stable across calls with the same selection.
func (l *Loop) toolSchemas(regs map[string]toolexec.Registration) []llm.ToolSchema {
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		reg := regs[name]
		switch reg.Class {
		case toolexec.ClassSearch:
			schemas = append(schemas, reg.Search.Schema())
		case toolexec.ClassResource:
			schemas = append(schemas, reg.Resource.Schema())
		}
	}
	return schemas
}
