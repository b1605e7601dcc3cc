// OpenAI adapter implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Chat Completions streaming chunk layout (tool-call index addressing)
// - Stop reason and error classification for OpenAI-compatible APIs
//
// The adapter is reused for any OpenAI-compatible vendor by overriding the
// base URL (see deepseek.go).

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements the Adapter interface for OpenAI and
// OpenAI-compatible APIs.
type OpenAIAdapter struct {
	client *openai.Client
	name   string
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		name:   "openai",
	}
}

// NewOpenAICompatibleAdapter creates an adapter for a vendor that speaks the
// OpenAI wire protocol at a different base URL.
func NewOpenAICompatibleAdapter(name, apiKey, baseURL string) *OpenAIAdapter {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(config),
		name:   name,
	}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// OpenStream starts a streaming chat completion.
func (a *OpenAIAdapter) OpenStream(ctx context.Context, req *Request, model string) (Stream, error) {
	oreq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAIMessages(req.Messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		oreq.MaxCompletionTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		oreq.Temperature = float32(*req.Temperature)
	}
	if len(req.StopSequences) > 0 {
		oreq.Stop = req.StopSequences
	}
	if len(req.Tools) > 0 {
		oreq.Tools = convertToOpenAITools(req.Tools)
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, classifyOpenAI(a.name, err)
	}
	return &openaiStream{name: a.name, stream: stream}, nil
}

// openaiStream normalizes Chat Completions chunks. Tool calls are addressed
// by index within the chunk stream; the call id and name arrive on the first
// fragment only, so the stream tracks the open call per index and closes it
// when a new index starts or the finish reason arrives.
type openaiStream struct {
	name   string
	stream *openai.ChatCompletionStream
	queue  []Event

	openCalls map[int]string // tool call index -> id
	usage     TokenUsage
	stop      StopReason
	done      bool
}

func (s *openaiStream) Next() (Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		chunk, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.closeOpenCalls()
			if s.stop == "" {
				s.stop = StopEndTurn
			}
			s.push(Stop{Reason: s.stop})
			s.done = true
			continue
		}
		if err != nil {
			return nil, classifyOpenAI(s.name, err)
		}
		s.translate(chunk)
	}
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}

func (s *openaiStream) push(ev Event) {
	s.queue = append(s.queue, ev)
}

func (s *openaiStream) translate(chunk openai.ChatCompletionStreamResponse) {
	if chunk.Usage != nil {
		s.usage = s.usage.Merge(TokenUsage{
			InputTokens:  uint64(chunk.Usage.PromptTokens),
			OutputTokens: uint64(chunk.Usage.CompletionTokens),
		})
		s.push(UsageUpdate{Usage: s.usage})
	}
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta.ReasoningContent != "" {
		s.push(ThinkingDelta{Text: choice.Delta.ReasoningContent})
	}
	if choice.Delta.Content != "" {
		s.push(TextDelta{Text: choice.Delta.Content})
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		if s.openCalls == nil {
			s.openCalls = make(map[int]string)
		}
		if tc.ID != "" {
			// A fresh id on an index closes whatever was open there.
			if prev, ok := s.openCalls[idx]; ok && prev != tc.ID {
				s.push(ToolCallEnd{ID: prev})
			}
			if s.openCalls[idx] != tc.ID {
				s.openCalls[idx] = tc.ID
				s.push(ToolCallStart{ID: tc.ID, Name: tc.Function.Name})
			}
		}
		if tc.Function.Arguments != "" {
			if id, ok := s.openCalls[idx]; ok {
				s.push(ToolCallDelta{ID: id, Fragment: tc.Function.Arguments})
			}
		}
	}

	if choice.FinishReason != "" {
		s.closeOpenCalls()
		s.stop = mapOpenAIFinish(choice.FinishReason)
	}
}

// closeOpenCalls emits end-of-call markers for every call still open, in
// index order.
func (s *openaiStream) closeOpenCalls() {
	for idx := 0; len(s.openCalls) > 0 && idx <= maxIndex(s.openCalls); idx++ {
		if id, ok := s.openCalls[idx]; ok {
			delete(s.openCalls, idx)
			s.push(ToolCallEnd{ID: id})
		}
	}
}

func maxIndex(m map[int]string) int {
	out := 0
	for k := range m {
		if k > out {
			out = k
		}
	}
	return out
}

func mapOpenAIFinish(reason openai.FinishReason) StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return StopEndTurn
	case openai.FinishReasonLength:
		return StopMaxTokens
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return StopToolUse
	case openai.FinishReasonContentFilter:
		return StopContentFilter
	default:
		return StopEndTurn
	}
}

// convertToOpenAIMessages converts normalized messages to OpenAI format.
func convertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	for _, msg := range messages {
		result = append(result, convertOpenAIMessage(msg))
	}
	return result
}

func convertOpenAIMessage(msg Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: string(msg.Role)}

	var text string
	var parts []openai.ChatMessagePart
	hasImage := false
	for _, part := range msg.Parts {
		switch {
		case part.Image != nil:
			hasImage = true
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", part.Image.MediaType, part.Image.Data),
				},
			})
		case part.ToolResult != nil:
			out.Role = string(RoleTool)
			out.ToolCallID = part.ToolResult.ToolCallID
			text += part.ToolResult.Content
		case part.ToolUse != nil:
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   part.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      part.ToolUse.Name,
					Arguments: string(part.ToolUse.Arguments),
				},
			})
		case part.Text != "":
			text += part.Text
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		}
	}

	// Multi-part content is only needed when images are present; plain text
	// keeps the simple form every compatible vendor accepts.
	if hasImage {
		out.MultiContent = parts
	} else {
		out.Content = text
	}
	return out
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// openaiRetryAfterRE pulls the delay hint OpenAI-compatible vendors embed in
// 429 error messages ("Please try again in 20s", "... in 350ms"). go-openai
// does not expose response headers, so the message is the only place the
// hint survives.
var openaiRetryAfterRE = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*(ms|s|m)\b`)

func openaiRetryAfter(msg string) time.Duration {
	m := openaiRetryAfterRE.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "ms":
		return time.Duration(v * float64(time.Millisecond))
	case "m":
		return time.Duration(v * float64(time.Minute))
	default:
		return time.Duration(v * float64(time.Second))
	}
}

func classifyOpenAI(name string, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyHTTPStatus(name, apiErr.HTTPStatusCode, openaiRetryAfter(apiErr.Message), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ClassifyHTTPStatus(name, reqErr.HTTPStatusCode, 0, err)
	}
	return Classify(name, err)
}

// Verify OpenAIAdapter implements Adapter
var _ Adapter = (*OpenAIAdapter)(nil)
