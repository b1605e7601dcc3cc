// Anthropic adapter implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Messages API streaming frame layout (content block index addressing)
// - Stop reason and error classification for the Messages API

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter implements the Adapter interface for Anthropic Claude.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// OpenStream starts a streaming Messages API call.
func (a *AnthropicAdapter) OpenStream(ctx context.Context, req *Request, model string) (Stream, error) {
	params, err := buildAnthropicParams(req, model)
	if err != nil {
		return nil, NewError(a.Name(), ErrMalformedResponse, err)
	}
	return &anthropicStream{
		events:  a.client.Messages.NewStreaming(ctx, params),
		toolIDs: make(map[int64]string),
	}, nil
}

// anthropicStream normalizes Messages API streaming frames. One vendor
// frame can yield several normalized events, so translations are queued and
// drained before the next frame is read.
type anthropicStream struct {
	events  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	queue   []Event
	toolIDs map[int64]string // content block index -> tool call id
	usage   TokenUsage
	stop    StopReason
	done    bool
}

func (s *anthropicStream) Next() (Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}
		if !s.events.Next() {
			if err := s.events.Err(); err != nil {
				return nil, classifyAnthropic(err)
			}
			s.done = true
			if s.stop != "" {
				return Stop{Reason: s.stop}, nil
			}
			return nil, NewError("anthropic", ErrMalformedResponse,
				errors.New("stream ended without message_stop"))
		}
		s.translate(s.events.Current())
	}
}

func (s *anthropicStream) Close() error {
	return s.events.Close()
}

func (s *anthropicStream) push(ev Event) {
	s.queue = append(s.queue, ev)
}

func (s *anthropicStream) translate(event anthropic.MessageStreamEventUnion) {
	switch v := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.usage = s.usage.Merge(TokenUsage{
			InputTokens:      uint64(v.Message.Usage.InputTokens),
			CacheReadTokens:  uint64(v.Message.Usage.CacheReadInputTokens),
			CacheWriteTokens: uint64(v.Message.Usage.CacheCreationInputTokens),
		})
		s.push(UsageUpdate{Usage: s.usage})

	case anthropic.ContentBlockStartEvent:
		switch blk := v.ContentBlock.AsAny().(type) {
		case anthropic.ToolUseBlock:
			s.toolIDs[v.Index] = blk.ID
			s.push(ToolCallStart{ID: blk.ID, Name: blk.Name})
		}

	case anthropic.ContentBlockDeltaEvent:
		switch d := v.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if d.Text != "" {
				s.push(TextDelta{Text: d.Text})
			}
		case anthropic.ThinkingDelta:
			if d.Thinking != "" {
				s.push(ThinkingDelta{Text: d.Thinking})
			}
		case anthropic.SignatureDelta:
			if d.Signature != "" {
				s.push(ThinkingDelta{Signature: d.Signature})
			}
		case anthropic.InputJSONDelta:
			if id, ok := s.toolIDs[v.Index]; ok && d.PartialJSON != "" {
				s.push(ToolCallDelta{ID: id, Fragment: d.PartialJSON})
			}
		}

	case anthropic.ContentBlockStopEvent:
		if id, ok := s.toolIDs[v.Index]; ok {
			delete(s.toolIDs, v.Index)
			s.push(ToolCallEnd{ID: id})
		}

	case anthropic.MessageDeltaEvent:
		if v.Delta.StopReason != "" {
			s.stop = mapAnthropicStop(string(v.Delta.StopReason))
		}
		if v.Usage.OutputTokens > 0 {
			s.usage = s.usage.Merge(TokenUsage{OutputTokens: uint64(v.Usage.OutputTokens)})
			s.push(UsageUpdate{Usage: s.usage})
		}

	case anthropic.MessageStopEvent:
		if s.stop == "" {
			s.stop = StopEndTurn
		}
		s.push(Stop{Reason: s.stop})
		s.done = true
	}
}

func mapAnthropicStop(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndTurn
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopSequenceHit
	case "tool_use":
		return StopToolUse
	case "refusal":
		return StopContentFilter
	default:
		return StopEndTurn
	}
}

// buildAnthropicParams converts a normalized request to Messages API params.
// The system prompt travels separately from the message list.
func buildAnthropicParams(req *Request, model string) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToAnthropicTools(req.Tools)
	}

	var system string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system += msg.Text()
		case RoleUser, RoleTool:
			blocks, err := anthropicContentBlocks(msg)
			if err != nil {
				return params, err
			}
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			blocks, err := anthropicContentBlocks(msg)
			if err != nil {
				return params, err
			}
			params.Messages = append(params.Messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		}
	}

	if system != "" {
		block := anthropic.TextBlockParam{Text: system}
		if req.CacheControl {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	return params, nil
}

func anthropicContentBlocks(msg Message) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch {
		case part.Image != nil:
			blocks = append(blocks, anthropic.NewImageBlockBase64(part.Image.MediaType, part.Image.Data))
		case part.ToolResult != nil:
			tr := part.ToolResult
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		case part.ToolUse != nil:
			var input map[string]any
			if err := jsonUnmarshalLoose(part.ToolUse.Arguments, &input); err != nil {
				return nil, fmt.Errorf("tool use %s: %w", part.ToolUse.ID, err)
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    part.ToolUse.ID,
					Name:  part.ToolUse.Name,
					Input: input,
				},
			})
		case part.Text != "":
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		}
	}
	return blocks, nil
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		required := schemaRequired(t.Parameters)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// schemaRequired extracts the required-field list, tolerating both the
// []string form and the []any form JSON decoding produces.
func schemaRequired(params map[string]any) []string {
	if req, ok := params["required"].([]string); ok {
		return req
	}
	if raw, ok := params["required"].([]any); ok {
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func classifyAnthropic(err error) *Error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return ClassifyHTTPStatus("anthropic", apierr.StatusCode, retryAfterHeader(apierr.Response), err)
	}
	return Classify("anthropic", err)
}

// retryAfterHeader parses a Retry-After response header, seconds form only.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Verify AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)
