package rag

import (
	"context"
	"fmt"

	"github.com/haasonsaas/wizardd/internal/infra"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// Merged describes a tool presented to the model as a single "search" tool
// that actually fans out to several underlying handlers (e.g. private
// resource search + web search), scoring and interleaving their combined
// results through a shared reranker.
type Merged struct {
	Name        string
	Description string
	Handlers    []SearchHandler
}

// MergeSearch runs every handler's Search concurrently against the same
// query, concatenates whatever comes back (one handler's failure does not
// sink the others), and leaves cite-id assignment and reranking to the
// caller (the tool executor), matching how a single-handler search tool is
// treated once its raw retrievals are in hand.
func MergeSearch(ctx context.Context, handlers []SearchHandler, query string, sel models.ToolSelection) ([]Retrieval, error) {
	type outcome struct {
		retrievals []Retrieval
		err        error
	}

	results, errs := infra.ParallelProcess(ctx, handlers, len(handlers), func(ctx context.Context, h SearchHandler) (outcome, error) {
		rs, err := h.Search(ctx, query, sel)
		return outcome{retrievals: rs, err: err}, nil
	})

	var merged []Retrieval
	var firstErr error
	okCount := 0
	for i, o := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		okCount++
		merged = append(merged, o.retrievals...)
	}
	if okCount == 0 && firstErr != nil {
		return nil, fmt.Errorf("rag: merge search: all %d handlers failed, first: %w", len(handlers), firstErr)
	}
	return merged, nil
}
