package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// SystemPromptFunc renders the message-0 system prompt for a fresh
// conversation, given the caller's language preference, the tool schemas
// resolved for this turn, and whether the custom <tool_call> tag protocol
// is in effect.
type SystemPromptFunc func(lang string, tools []llm.ToolSchema, customToolCall bool) string

const defaultSystemPromptTemplate = `You are a knowledgeable assistant that answers questions using the tools
made available to you and cites every claim it draws from a tool result.
{{- if .Lang}}
Respond in {{.Lang}}.
{{- end}}
{{- if .Tools}}

Available tools:
{{- range .Tools}}
- {{.Name}}: {{.Description}}
{{- end}}
{{- end}}
{{- if .CustomToolCall}}

Emit tool calls as newline-delimited JSON objects wrapped in <tool_call>
and </tool_call> tags, and internal reasoning wrapped in <think> and
</think> tags.
{{- end}}

Every fact drawn from a <cite> element in a tool result must be attributed
using its numeric id in the final answer.
`

var defaultSystemPromptTmpl = template.Must(template.New("system").Parse(defaultSystemPromptTemplate))

// DefaultSystemPrompt is the text/template-based system prompt renderer
// used when no SystemPromptFunc is supplied to New.
func DefaultSystemPrompt(lang string, tools []llm.ToolSchema, customToolCall bool) string {
	var b strings.Builder
	data := struct {
		Lang           string
		Tools          []llm.ToolSchema
		CustomToolCall bool
	}{Lang: lang, Tools: tools, CustomToolCall: customToolCall}
	if err := defaultSystemPromptTmpl.Execute(&b, data); err != nil {
		// The template is a compile-time constant; a render failure here
		// means a future edit broke it, not a runtime condition callers
		// can recover from a fallback.
		return fmt.Sprintf("system prompt render failed: %v", err)
	}
	return b.String()
}

// renderToolsXML serializes the selected/related resources attached to a
// user message into the synthetic <tools>/<selected_resources>/
// <related_resources> XML block injected ahead of the model call. It is
// never persisted back into the transcript.
func renderToolsXML(attrs *models.MessageAttrs) string {
	if attrs == nil {
		return ""
	}
	var b strings.Builder
	if len(attrs.ToolsSelected) > 0 {
		b.WriteString("<tools>\n")
		for _, t := range attrs.ToolsSelected {
			fmt.Fprintf(&b, "<tool name=%q namespace_id=%q/>\n", t.Name, t.NamespaceID)
			if len(t.VisibleResources) > 0 {
				b.WriteString("<selected_resources>\n")
				for _, r := range t.VisibleResources {
					fmt.Fprintf(&b, "<resource tool=%q id=%q/>\n", t.Name, r)
				}
				b.WriteString("</selected_resources>\n")
			}
		}
		b.WriteString("</tools>")
	}
	if len(attrs.RelatedResources) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("<related_resources>\n")
		for _, c := range attrs.RelatedResources {
			fmt.Fprintf(&b, "<resource id=%q title=%q/>\n", c.Link, c.Title)
		}
		b.WriteString("</related_resources>")
	}
	return b.String()
}
