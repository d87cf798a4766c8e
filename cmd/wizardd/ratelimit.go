package main

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/wizardd/internal/infra"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// limitedSearch gates a SearchHandler behind one of the pool's named
// admission categories; the semaphore is always released, success or
// failure.
type limitedSearch struct {
	inner    rag.SearchHandler
	pool     *infra.SemaphorePool
	category string
}

func (l limitedSearch) Schema() llm.ToolSchema { return l.inner.Schema() }

func (l limitedSearch) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	if err := l.pool.Acquire(ctx, l.category, 1); err != nil {
		return nil, err
	}
	defer l.pool.Release(l.category, 1)
	return l.inner.Search(ctx, query, sel)
}

// limitedResource is limitedSearch's ResourceHandler counterpart.
type limitedResource struct {
	inner    rag.ResourceHandler
	pool     *infra.SemaphorePool
	category string
}

func (l limitedResource) Schema() llm.ToolSchema { return l.inner.Schema() }

func (l limitedResource) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	if err := l.pool.Acquire(ctx, l.category, 1); err != nil {
		return nil, err
	}
	defer l.pool.Release(l.category, 1)
	return l.inner.Invoke(ctx, args, sel)
}
