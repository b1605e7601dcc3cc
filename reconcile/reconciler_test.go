package reconcile

import (
	"testing"

	"github.com/loomlabs/loom/llm"
)

var searchTool = llm.ToolDefinition{
	Name: "search",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		},
		"required": []any{"query"},
	},
}

func newTestReconciler() *Reconciler {
	return New("fake", []llm.ToolDefinition{searchTool})
}

func TestFragmentsConcatenatedInOrder(t *testing.T) {
	r := newTestReconciler()

	if err := r.Start("c1", "search"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	r.Append("c1", `{"qu`)
	r.Append("c1", `ery":`)
	r.Append("c1", ` "golang"}`)

	call, cerr := r.Finish("c1")
	if cerr != nil {
		t.Fatalf("finish failed: %v", cerr)
	}
	if call.ID != "c1" || call.Name != "search" {
		t.Errorf("unexpected call identity: %+v", call)
	}
	if string(call.Arguments) != `{"query": "golang"}` {
		t.Errorf("fragments not concatenated in order: %s", call.Arguments)
	}
}

func TestMalformedJSONIsScoped(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("bad", "search")
	r.Append("bad", `{"query": `)
	_, cerr := r.Finish("bad")
	if cerr == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if cerr.Kind != llm.ErrToolCallInvalid {
		t.Errorf("expected tool_call_invalid, got %v", cerr.Kind)
	}
	if cerr.ToolCallID != "bad" {
		t.Errorf("error must be scoped to call id 'bad', got %q", cerr.ToolCallID)
	}

	// A sibling call is unaffected.
	_ = r.Start("good", "search")
	r.Append("good", `{"query": "x"}`)
	if _, cerr := r.Finish("good"); cerr != nil {
		t.Errorf("sibling call must succeed: %v", cerr)
	}
}

func TestSchemaViolation(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("c1", "search")
	r.Append("c1", `{"limit": 5}`) // missing required query
	_, cerr := r.Finish("c1")
	if cerr == nil || cerr.Kind != llm.ErrToolCallInvalid {
		t.Fatalf("expected schema violation, got %v", cerr)
	}
}

func TestWrongArgumentType(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("c1", "search")
	r.Append("c1", `{"query": 42}`)
	_, cerr := r.Finish("c1")
	if cerr == nil || cerr.Kind != llm.ErrToolCallInvalid {
		t.Fatalf("expected type violation, got %v", cerr)
	}
}

func TestEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	r := New("fake", []llm.ToolDefinition{{Name: "noop", Parameters: map[string]any{"type": "object"}}})

	_ = r.Start("c1", "noop")
	call, cerr := r.Finish("c1")
	if cerr != nil {
		t.Fatalf("finish failed: %v", cerr)
	}
	if string(call.Arguments) != "{}" {
		t.Errorf("expected empty object, got %s", call.Arguments)
	}
}

func TestUndeclaredTool(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("c1", "delete_everything")
	r.Append("c1", `{}`)
	_, cerr := r.Finish("c1")
	if cerr == nil || cerr.Kind != llm.ErrToolCallInvalid {
		t.Fatalf("expected error for undeclared tool, got %v", cerr)
	}
}

func TestDuplicateCallID(t *testing.T) {
	r := newTestReconciler()

	if err := r.Start("c1", "search"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := r.Start("c1", "search"); err == nil {
		t.Error("expected error for duplicate id while pending")
	}

	r.Append("c1", `{"query": "x"}`)
	if _, cerr := r.Finish("c1"); cerr != nil {
		t.Fatalf("finish failed: %v", cerr)
	}
	if err := r.Start("c1", "search"); err == nil {
		t.Error("expected error for reused id after completion")
	}
}

func TestFinishWithoutStart(t *testing.T) {
	r := newTestReconciler()

	_, cerr := r.Finish("ghost")
	if cerr == nil || cerr.Kind != llm.ErrToolCallInvalid {
		t.Fatalf("expected error for unknown id, got %v", cerr)
	}
}

func TestAppendToUnknownIDIsDropped(t *testing.T) {
	r := newTestReconciler()

	r.Append("ghost", `{"query": "x"}`)
	if r.Pending() != 0 {
		t.Errorf("expected no pending calls, got %d", r.Pending())
	}
}

func TestAbandonDiscardsPending(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("c1", "search")
	r.Append("c1", `{"query": "incomple`)
	if r.Pending() != 1 {
		t.Fatalf("expected one pending call, got %d", r.Pending())
	}

	r.Abandon()
	if r.Pending() != 0 {
		t.Errorf("expected no pending calls after abandon, got %d", r.Pending())
	}
}

func TestInterleavedCalls(t *testing.T) {
	r := newTestReconciler()

	_ = r.Start("a", "search")
	_ = r.Start("b", "search")
	r.Append("a", `{"query":`)
	r.Append("b", `{"query": "b"}`)
	r.Append("a", ` "a"}`)

	callB, cerr := r.Finish("b")
	if cerr != nil {
		t.Fatalf("finish b failed: %v", cerr)
	}
	callA, cerr := r.Finish("a")
	if cerr != nil {
		t.Fatalf("finish a failed: %v", cerr)
	}
	if string(callA.Arguments) != `{"query": "a"}` || string(callB.Arguments) != `{"query": "b"}` {
		t.Errorf("interleaved buffers mixed up: a=%s b=%s", callA.Arguments, callB.Arguments)
	}
}
