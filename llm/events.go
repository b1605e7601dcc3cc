// Streaming event variants.
//
// Events for one logical request are strictly ordered: every ToolCall for
// id X follows all ToolCallDelta events for X and precedes Stop. Exactly one
// terminal event (Stop or a final *Error) ends the sequence; nothing is
// delivered after it.

package llm

import "encoding/json"

// Event is one element of a completion stream.
type Event interface {
	event()
}

// TextDelta is an incremental chunk of assistant text.
type TextDelta struct {
	Text string
}

// ThinkingDelta is an incremental chunk of model reasoning. Signature is
// set by providers that sign their thinking blocks.
type ThinkingDelta struct {
	Text      string
	Signature string
}

// ToolCallStart announces a new tool invocation. Argument fragments for the
// same ID follow as ToolCallDelta events.
type ToolCallStart struct {
	ID   string
	Name string
}

// ToolCallDelta is a fragment of a tool call's JSON arguments, delivered in
// stream order. Fragments are raw text; concatenating them in order yields
// the full argument payload.
type ToolCallDelta struct {
	ID       string
	Fragment string
}

// ToolCallEnd is the provider's end-of-call marker. It is consumed by the
// lifecycle engine, which replaces it with either a validated ToolCall or a
// scoped ToolCallInvalid error; callers never observe it.
type ToolCallEnd struct {
	ID string
}

// ToolCall is a complete, schema-validated tool invocation. Emitted exactly
// once per call id.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// UsageUpdate carries the cumulative token counts known so far. Counts are
// monotonically non-decreasing within a request.
type UsageUpdate struct {
	Usage TokenUsage
}

// StatusUpdate reports a lifecycle transition (streaming, retrying) and the
// attempt number it applies to.
type StatusUpdate struct {
	State   string
	Attempt int
}

// Stop is the successful terminal event.
type Stop struct {
	Reason StopReason
}

func (TextDelta) event()     {}
func (ThinkingDelta) event() {}
func (ToolCallStart) event() {}
func (ToolCallDelta) event() {}
func (ToolCallEnd) event()   {}
func (ToolCall) event()      {}
func (UsageUpdate) event()   {}
func (StatusUpdate) event()  {}
func (Stop) event()          {}
func (*Error) event()        {}
