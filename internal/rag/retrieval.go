// Package rag defines the retrieval-side interfaces the agent loop and
// tool executor consume: retrievals, search handlers, resource handlers,
// and the reranker/merge helpers that sit between them.
package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/wizardd/pkg/models"
)

// Kind discriminates the two retrieval shapes.
type Kind int

const (
	KindChunk Kind = iota
	KindWeb
)

// Score is the recall/rerank score pair carried by every retrieval.
type Score struct {
	Recall float64
	Rerank float64
}

// Retrieval is a single search result, either a chunk from a private
// document or a web page. CiteID is unset (0) until the tool executor
// assigns it during sorting.
type Retrieval interface {
	Kind() Kind
	ResourceID() string // "" for web retrievals
	StartIndex() int    // 0 for web retrievals
	Score() Score
	CiteID() int
	SetCiteID(id int)
	// ToPrompt renders the retrieval as one <cite> XML element for
	// inclusion in a <retrievals> block.
	ToPrompt() string
	// ToCitation renders the user-visible citation record. id must have
	// already been assigned via SetCiteID.
	ToCitation() models.Citation
	// Identity is the dedup key the reranker uses to drop repeats.
	Identity() string
}

// ChunkRetrieval is a retrieved span of text belonging to a private
// document (namespace-scoped resource).
type ChunkRetrieval struct {
	ResourceIDValue string
	Folder          string
	Start, End      int
	Text            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ScoreValue      Score
	citeID          int
}

func (c *ChunkRetrieval) Kind() Kind         { return KindChunk }
func (c *ChunkRetrieval) ResourceID() string { return c.ResourceIDValue }
func (c *ChunkRetrieval) StartIndex() int    { return c.Start }
func (c *ChunkRetrieval) Score() Score       { return c.ScoreValue }
func (c *ChunkRetrieval) CiteID() int        { return c.citeID }
func (c *ChunkRetrieval) SetCiteID(id int)   { c.citeID = id }

func (c *ChunkRetrieval) Identity() string {
	return fmt.Sprintf("chunk:%s:%d:%d", c.ResourceIDValue, c.Start, c.End)
}

func (c *ChunkRetrieval) ToPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<cite id="%d" source="private" resource_id="%s" folder="%s">`, c.citeID, c.ResourceIDValue, c.Folder)
	b.WriteString(normalizeBreaks(c.Text))
	b.WriteString("</cite>")
	return b.String()
}

func (c *ChunkRetrieval) ToCitation() models.Citation {
	return models.Citation{
		ID:          c.citeID,
		Title:       c.Folder,
		Snippet:     c.Text,
		Link:        c.ResourceIDValue,
		Source:      "private",
		NamespaceID: "",
		UpdatedAt:   c.UpdatedAt,
	}
}

// WebRetrieval is a retrieved web search result.
type WebRetrieval struct {
	URL       string
	Title     string
	Snippet   string
	Published time.Time
	ScoreValue Score
	citeID    int
}

func (w *WebRetrieval) Kind() Kind         { return KindWeb }
func (w *WebRetrieval) ResourceID() string { return "" }
func (w *WebRetrieval) StartIndex() int    { return 0 }
func (w *WebRetrieval) Score() Score       { return w.ScoreValue }
func (w *WebRetrieval) CiteID() int        { return w.citeID }
func (w *WebRetrieval) SetCiteID(id int)   { w.citeID = id }

func (w *WebRetrieval) Identity() string { return "web:" + w.URL }

func (w *WebRetrieval) ToPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<cite id="%d" source="web" link="%s" title="%s">`, w.citeID, w.URL, w.Title)
	b.WriteString(normalizeBreaks(w.Snippet))
	b.WriteString("</cite>")
	return b.String()
}

func (w *WebRetrieval) ToCitation() models.Citation {
	return models.Citation{
		ID:        w.citeID,
		Title:     w.Title,
		Snippet:   w.Snippet,
		Link:      w.URL,
		Source:    "web",
		UpdatedAt: w.Published,
	}
}

func normalizeBreaks(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// RetrievalsToPrompt renders a sorted, cite-id-assigned retrieval list as a
// single <retrievals> block, or "Not found" if empty.
func RetrievalsToPrompt(retrievals []Retrieval) string {
	if len(retrievals) == 0 {
		return "Not found"
	}
	var b strings.Builder
	b.WriteString("<retrievals>\n")
	for _, r := range retrievals {
		b.WriteString(r.ToPrompt())
		b.WriteByte('\n')
	}
	b.WriteString("</retrievals>")
	return b.String()
}
