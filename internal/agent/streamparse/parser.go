// Package streamparse turns a raw assistant content stream into a sequence
// of tagged delta operations, recognising the custom-tool-call markup some
// upstream models use to embed tool calls and reasoning inside plain
// content instead of a structured field.
package streamparse

import "strings"

// Kind tags one fragment of parsed stream output.
type Kind string

const (
	KindContent  Kind = "content"
	KindThink    Kind = "think"
	KindToolCall Kind = "tool_call"
)

var tags = []struct {
	literal string
	kind    Kind
	closing bool
}{
	{"<think>", KindThink, false},
	{"</think>", "", true},
	{"<tool_call>", KindToolCall, false},
	{"</tool_call>", "", true},
}

// Op is one delta operation produced by a Feed call.
type Op struct {
	Kind  Kind
	Delta string
}

// Parser is a stateful, single-threaded tag parser for one conversation
// turn's content stream. It must not be reused across turns or shared
// across goroutines.
type Parser struct {
	current Kind
	buffer  string
	stack   []Kind
}

// New returns a Parser ready to consume the first token of a turn.
func New() *Parser {
	return &Parser{current: KindContent}
}

// Feed consumes the next chunk of raw stream text and returns the delta
// operations it completes. Partial tags that straddle this call and the
// next are buffered internally and never appear in the returned ops.
func (p *Parser) Feed(token string) []Op {
	text := p.buffer + token
	p.buffer = ""

	var ops []Op
	cursor := 0

	for cursor < len(text) {
		next := strings.IndexByte(text[cursor:], '<')
		if next == -1 {
			if cursor < len(text) {
				ops = append(ops, Op{Kind: p.current, Delta: text[cursor:]})
			}
			break
		}
		next += cursor

		if next > cursor {
			ops = append(ops, Op{Kind: p.current, Delta: text[cursor:next]})
			cursor = next
		}

		matched := false
		for _, tag := range tags {
			if !strings.HasPrefix(text[cursor:], tag.literal) {
				continue
			}
			matched = true
			if tag.closing {
				if len(p.stack) > 0 {
					p.stack = p.stack[:len(p.stack)-1]
				}
				if len(p.stack) > 0 {
					p.current = p.stack[len(p.stack)-1]
				} else {
					p.current = KindContent
				}
			} else {
				p.stack = append(p.stack, tag.kind)
				p.current = tag.kind
			}
			cursor += len(tag.literal)
			break
		}

		if !matched {
			// Either an unrecognised '<' or a tag straddling the end of
			// this chunk: buffer the remainder and wait for more input.
			p.buffer = text[cursor:]
			break
		}
	}

	out := ops[:0]
	for _, op := range ops {
		if op.Delta != "" {
			out = append(out, op)
		}
	}
	return out
}
