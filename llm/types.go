// Package llm provides the normalized completion model shared by all
// provider adapters.
//
// A Request is the provider-agnostic form of a completion call. Adapters
// translate it into vendor wire format and translate the vendor's streaming
// frames back into the Event variants defined in events.go. Nothing in this
// package talks to the network directly; the vendor SDKs own the transport.
package llm

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a message body. Exactly one field is set.
type ContentPart struct {
	Text       string
	Image      *ImageData
	ToolResult *ToolResult
	ToolUse    *ToolCall // prior assistant tool invocation, for history replay
}

// ImageData is a base64-encoded image attachment.
type ImageData struct {
	MediaType string // e.g. "image/png"
	Data      string // base64 payload, no data: prefix
}

// ToolResult carries the caller's result for a previously issued tool call.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role  Role
	Parts []ContentPart
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	out := ""
	for _, p := range m.Parts {
		out += p.Text
	}
	return out
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{{Text: text}}}
}

// UserMessage creates a user message with a single text part.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []ContentPart{{Text: text}}}
}

// AssistantMessage creates an assistant message with a single text part.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []ContentPart{{Text: text}}}
}

// ToolResultMessage creates a tool-result message for a completed call.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{Role: RoleTool, Parts: []ContentPart{
		{ToolResult: &ToolResult{ToolCallID: toolCallID, Content: content, IsError: isError}},
	}}
}

// ToolDefinition declares a tool the model may invoke.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Request is a normalized completion request. It is immutable once
// submitted: the engine and adapters only read from it.
type Request struct {
	Messages      []Message
	Tools         []ToolDefinition
	Temperature   *float64
	MaxTokens     int64 // 0 means the adapter's default
	StopSequences []string

	// CacheControl asks providers that support prompt caching to mark the
	// stable prefix (system prompt) as cacheable.
	CacheControl bool
}

// HasImages reports whether any message carries an image part.
func (r *Request) HasImages() bool {
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if p.Image != nil {
				return true
			}
		}
	}
	return false
}

// TokenUsage holds cumulative token counts for one logical request.
// Cache read/write counts reflect prompt-caching reuse and are distinct
// from the raw input/output counts.
type TokenUsage struct {
	InputTokens      uint64
	OutputTokens     uint64
	CacheReadTokens  uint64
	CacheWriteTokens uint64
}

// Total returns the sum of all counters.
func (u TokenUsage) Total() uint64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Merge returns the field-wise maximum of u and o. Providers report
// cumulative totals, so a merge never decreases any counter.
func (u TokenUsage) Merge(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:      max(u.InputTokens, o.InputTokens),
		OutputTokens:     max(u.OutputTokens, o.OutputTokens),
		CacheReadTokens:  max(u.CacheReadTokens, o.CacheReadTokens),
		CacheWriteTokens: max(u.CacheWriteTokens, o.CacheWriteTokens),
	}
}

// StopReason is the shared vocabulary for why generation ended.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopMaxTokens     StopReason = "max_tokens"
	StopSequenceHit   StopReason = "stop_sequence"
	StopToolUse       StopReason = "tool_use"
	StopContentFilter StopReason = "content_filter"
)
