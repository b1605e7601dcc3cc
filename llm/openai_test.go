package llm

import (
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func intPtr(v int) *int { return &v }

func TestOpenAIStreamTranslateText(t *testing.T) {
	s := &openaiStream{name: "openai"}

	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: "hello"},
		}},
	})

	if len(s.queue) != 1 {
		t.Fatalf("expected 1 event, got %d", len(s.queue))
	}
	if td, ok := s.queue[0].(TextDelta); !ok || td.Text != "hello" {
		t.Errorf("expected TextDelta 'hello', got %#v", s.queue[0])
	}
}

func TestOpenAIStreamTranslateReasoning(t *testing.T) {
	s := &openaiStream{name: "deepseek"}

	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{ReasoningContent: "pondering"},
		}},
	})

	if td, ok := s.queue[0].(ThinkingDelta); !ok || td.Text != "pondering" {
		t.Errorf("expected ThinkingDelta, got %#v", s.queue[0])
	}
}

func TestOpenAIStreamToolCallSequencing(t *testing.T) {
	s := &openaiStream{name: "openai"}

	// First fragment carries id and name; later fragments only arguments.
	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    intPtr(0),
					ID:       "call_1",
					Function: openai.FunctionCall{Name: "search", Arguments: `{"qu`},
				}},
			},
		}},
	})
	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    intPtr(0),
					Function: openai.FunctionCall{Arguments: `ery": "go"}`},
				}},
			},
		}},
	})
	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			FinishReason: openai.FinishReasonToolCalls,
		}},
	})

	want := []Event{
		ToolCallStart{ID: "call_1", Name: "search"},
		ToolCallDelta{ID: "call_1", Fragment: `{"qu`},
		ToolCallDelta{ID: "call_1", Fragment: `ery": "go"}`},
		ToolCallEnd{ID: "call_1"},
	}
	if len(s.queue) != len(want) {
		t.Fatalf("expected %d events, got %d: %#v", len(want), len(s.queue), s.queue)
	}
	for i, w := range want {
		if s.queue[i] != w {
			t.Errorf("event %d: expected %#v, got %#v", i, w, s.queue[i])
		}
	}
	if s.stop != StopToolUse {
		t.Errorf("expected tool_use stop, got %v", s.stop)
	}
}

func TestOpenAIStreamNewIDClosesPreviousCall(t *testing.T) {
	s := &openaiStream{name: "openai"}

	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    intPtr(0),
					ID:       "a",
					Function: openai.FunctionCall{Name: "one", Arguments: `{}`},
				}},
			},
		}},
	})
	s.translate(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    intPtr(0),
					ID:       "b",
					Function: openai.FunctionCall{Name: "two"},
				}},
			},
		}},
	})

	var ends []string
	for _, ev := range s.queue {
		if e, ok := ev.(ToolCallEnd); ok {
			ends = append(ends, e.ID)
		}
	}
	if len(ends) != 1 || ends[0] != "a" {
		t.Errorf("a new id on the same index must close the previous call, got ends %v", ends)
	}
}

func TestOpenAIStreamUsage(t *testing.T) {
	s := &openaiStream{name: "openai"}

	s.translate(openai.ChatCompletionStreamResponse{
		Usage: &openai.Usage{PromptTokens: 12, CompletionTokens: 7},
	})

	uu, ok := s.queue[0].(UsageUpdate)
	if !ok {
		t.Fatalf("expected UsageUpdate, got %#v", s.queue[0])
	}
	if uu.Usage.InputTokens != 12 || uu.Usage.OutputTokens != 7 {
		t.Errorf("unexpected usage: %+v", uu.Usage)
	}
}

func TestMapOpenAIFinish(t *testing.T) {
	tests := []struct {
		reason openai.FinishReason
		want   StopReason
	}{
		{openai.FinishReasonStop, StopEndTurn},
		{openai.FinishReasonLength, StopMaxTokens},
		{openai.FinishReasonToolCalls, StopToolUse},
		{openai.FinishReasonContentFilter, StopContentFilter},
		{openai.FinishReason("weird"), StopEndTurn},
	}
	for _, tt := range tests {
		if got := mapOpenAIFinish(tt.reason); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.reason, tt.want, got)
		}
	}
}

func TestConvertOpenAIMessagePlainText(t *testing.T) {
	out := convertOpenAIMessage(UserMessage("hi there"))

	if out.Role != "user" || out.Content != "hi there" {
		t.Errorf("unexpected message: %+v", out)
	}
	if out.MultiContent != nil {
		t.Error("plain text must not use multi-part content")
	}
}

func TestConvertOpenAIMessageWithImage(t *testing.T) {
	msg := Message{Role: RoleUser, Parts: []ContentPart{
		{Text: "what is this"},
		{Image: &ImageData{MediaType: "image/png", Data: "aGVsbG8="}},
	}}
	out := convertOpenAIMessage(msg)

	if out.Content != "" {
		t.Error("image messages must use multi-part content exclusively")
	}
	if len(out.MultiContent) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(out.MultiContent))
	}
	if out.MultiContent[1].ImageURL == nil || out.MultiContent[1].ImageURL.URL != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("unexpected image part: %+v", out.MultiContent[1])
	}
}

func TestConvertOpenAIMessageToolResult(t *testing.T) {
	out := convertOpenAIMessage(ToolResultMessage("call_1", "42", false))

	if out.Role != string(RoleTool) || out.ToolCallID != "call_1" || out.Content != "42" {
		t.Errorf("unexpected tool result message: %+v", out)
	}
}

func TestOpenAIRetryAfterFromMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{"Rate limit reached for gpt-5.2. Please try again in 20s.", 20 * time.Second},
		{"Rate limit reached. Please try again in 350ms.", 350 * time.Millisecond},
		{"Please try again in 1.5s.", 1500 * time.Millisecond},
		{"Please try again in 2m.", 2 * time.Minute},
		{"You exceeded your current quota.", 0},
	}
	for _, tt := range tests {
		if got := openaiRetryAfter(tt.msg); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.msg, tt.want, got)
		}
	}
}

func TestClassifyOpenAIRateLimitCarriesHint(t *testing.T) {
	apiErr := &openai.APIError{
		HTTPStatusCode: 429,
		Message:        "Rate limit reached for gpt-5.2. Please try again in 7s.",
	}

	cerr := classifyOpenAI("openai", apiErr)
	if cerr.Kind != ErrRateLimited {
		t.Fatalf("expected rate-limited, got %v", cerr.Kind)
	}
	if cerr.RetryAfter != 7*time.Second {
		t.Errorf("expected a 7s retry hint, got %v", cerr.RetryAfter)
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	defs := []ToolDefinition{{
		Name:        "search",
		Description: "find things",
		Parameters:  map[string]any{"type": "object"},
	}}
	out := convertToOpenAITools(defs)

	if len(out) != 1 || out[0].Function.Name != "search" {
		t.Errorf("unexpected tools: %+v", out)
	}
}
