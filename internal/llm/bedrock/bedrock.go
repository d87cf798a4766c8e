// Package bedrock implements internal/llm.Client against AWS Bedrock's
// Converse streaming API. It is the "dedicated thinking-model" arm of the
// loop's provider pair.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/wizardd/internal/llm"
)

// Config configures the Bedrock-backed client.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ModelID         string
	ThinkingModelID string
}

// Client implements llm.Client against bedrockruntime.ConverseStream.
type Client struct {
	client        *bedrockruntime.Client
	model         string
	thinkingModel string
}

// New builds a Client from configuration. Static credentials override the
// default AWS credential chain when both keys are set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Client{
		client:        bedrockruntime.NewFromConfig(awsCfg),
		model:         cfg.ModelID,
		thinkingModel: cfg.ThinkingModelID,
	}, nil
}

// ThinkingModel names the dedicated thinking-capable model id, if any.
func (c *Client) ThinkingModel() string { return c.thinkingModel }

// Complete issues a ConverseStream call and translates its event stream
// into the shared llm.Chunk protocol.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if req.EnableThinking != nil && *req.EnableThinking && c.thinkingModel != "" {
		model = c.thinkingModel
	}

	var system []types.SystemContentBlock
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if m.Content != "" {
				system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			}
			continue
		}
		messages = append(messages, convertMessage(m))
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
		System:   system,
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertTools(req.Tools)
	}

	out, err := c.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse stream: %w", err)
	}

	chunks := make(chan llm.Chunk)
	go consumeStream(ctx, out, chunks)
	return chunks, nil
}

func convertMessage(m llm.WireMessage) types.Message {
	role := types.ConversationRoleUser
	if m.Role == "assistant" {
		role = types.ConversationRoleAssistant
	}

	var content []types.ContentBlock
	if m.Content != "" {
		content = append(content, &types.ContentBlockMemberText{Value: m.Content})
	}
	if m.Role == "tool" {
		content = append(content, &types.ContentBlockMemberToolResult{
			Value: types.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
			},
		})
		role = types.ConversationRoleUser
	}
	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		content = append(content, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Function.Name),
				Input:     document.NewLazyDocument(input),
			},
		})
	}
	return types.Message{Role: role, Content: content}
}

func convertTools(tools []llm.ToolSchema) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func consumeStream(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, chunks chan<- llm.Chunk) {
	defer close(chunks)
	stream := out.GetStream()
	defer stream.Close()

	var toolCallIndex int
	var toolCallID, toolCallName string
	var toolArgs strings.Builder
	inToolUse := false

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- llm.Chunk{Kind: llm.ChunkError, Err: ctx.Err()}
			return
		case event, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					chunks <- llm.Chunk{Kind: llm.ChunkError, Err: err}
					return
				}
				chunks <- llm.Chunk{Kind: llm.ChunkDone}
				return
			}
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					inToolUse = true
					toolCallID = aws.ToString(tu.Value.ToolUseId)
					toolCallName = aws.ToString(tu.Value.Name)
					toolArgs.Reset()
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch d := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if d.Value != "" {
						chunks <- llm.Chunk{Kind: llm.ChunkContent, Text: d.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if d.Value.Input != nil {
						toolArgs.WriteString(*d.Value.Input)
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				if inToolUse {
					chunks <- llm.Chunk{
						Kind:          llm.ChunkToolCallDelta,
						ToolCallIndex: toolCallIndex,
						ToolCallID:    toolCallID,
						ToolCallName:  toolCallName,
						ArgsDelta:     toolArgs.String(),
					}
					toolCallIndex++
					inToolUse = false
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- llm.Chunk{Kind: llm.ChunkDone}
				return
			}
		}
	}
}

var _ llm.Client = (*Client)(nil)
