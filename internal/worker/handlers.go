package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/wizardd/internal/agent"
	"github.com/haasonsaas/wizardd/pkg/models"
	"github.com/haasonsaas/wizardd/pkg/wire"
)

// AgentRunInput is the task.Input shape for the "agent-run" function: one
// call into the agent streaming loop (§4.4), dispatched the same way any
// other function is.
type AgentRunInput struct {
	ConversationID  string                 `json:"conversation_id"`
	Query           string                 `json:"query"`
	PriorTranscript []models.Message       `json:"prior_transcript,omitempty"`
	Tools           []models.ToolSelection `json:"tools,omitempty"`
	EnableThinking  bool                   `json:"enable_thinking,omitempty"`
	MergeSearch     bool                   `json:"merge_search,omitempty"`
	CustomToolCall  bool                   `json:"custom_tool_call,omitempty"`
	Lang            string                 `json:"lang,omitempty"`
}

// AgentRunOutput carries the full transcript (prior plus every message this
// turn produced) back to the task's caller.
type AgentRunOutput struct {
	Transcript []models.Message `json:"transcript"`
}

// NewAgentRunHandler adapts an agent.Loop into a FunctionHandler: it drains
// the loop's event stream to completion (no caller to relay BOS/Delta/EOS
// to in the worker context) and returns the resulting transcript as the
// task's output, or the loop's terminal error as the task's failure.
func NewAgentRunHandler(loop *agent.Loop) FunctionHandler {
	return func(ctx context.Context, task *wire.Task) (json.RawMessage, error) {
		var in AgentRunInput
		if err := json.Unmarshal(task.Input, &in); err != nil {
			return nil, fmt.Errorf("agent-run: decode input: %w", err)
		}

		events, err := loop.Run(ctx, agent.Request{
			ConversationID:  in.ConversationID,
			PriorTranscript: in.PriorTranscript,
			Query:           in.Query,
			Tools:           in.Tools,
			EnableThinking:  in.EnableThinking,
			MergeSearch:     in.MergeSearch,
			CustomToolCall:  in.CustomToolCall,
			Lang:            in.Lang,
		})
		if err != nil {
			return nil, fmt.Errorf("agent-run: start loop: %w", err)
		}

		newMessages, runErr := drainTranscript(events)
		if runErr != nil {
			return nil, fmt.Errorf("agent-run: %w", runErr)
		}

		transcript := append(append([]models.Message(nil), in.PriorTranscript...), newMessages...)
		out, err := json.Marshal(AgentRunOutput{Transcript: transcript})
		if err != nil {
			return nil, fmt.Errorf("agent-run: marshal output: %w", err)
		}
		return out, nil
	}
}

// drainTranscript reconstructs the list of messages a Loop.Run produced
// from its event stream. Per §4.4's event protocol, the Delta immediately
// preceding a message's EOS always carries that message's final, complete
// form (earlier Deltas for the same message are streaming fragments), so
// tracking only the most recent Delta.Message and flushing it on EOS
// recovers the transcript exactly.
func drainTranscript(events <-chan agent.Event) ([]models.Message, error) {
	var transcript []models.Message
	var pending *models.Message
	var runErr error

	for ev := range events {
		switch ev.Kind {
		case agent.EventDelta:
			if ev.Message != nil {
				m := *ev.Message
				pending = &m
			}
		case agent.EventEOS:
			if pending != nil {
				transcript = append(transcript, *pending)
				pending = nil
			}
		case agent.EventError:
			runErr = ev.Err
		case agent.EventBOS, agent.EventDone:
		}
	}
	return transcript, runErr
}

// FileReaderInput is the task.Input shape for the "file_reader" function.
type FileReaderInput struct {
	Path string `json:"path"`
}

// FileReaderOutput carries the file's full text content.
type FileReaderOutput struct {
	Content string `json:"content"`
}

// FileReaderHandler reads the whole file at Path; supervising timeouts still apply via
// taskmgr.Supervise, even though a plain os.ReadFile does not itself
// observe ctx cancellation mid-read.
func FileReaderHandler(ctx context.Context, task *wire.Task) (json.RawMessage, error) {
	var in FileReaderInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, fmt.Errorf("file_reader: decode input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("file_reader: read %s: %w", in.Path, err)
	}
	out, err := json.Marshal(FileReaderOutput{Content: string(data)})
	if err != nil {
		return nil, fmt.Errorf("file_reader: marshal output: %w", err)
	}
	return out, nil
}
