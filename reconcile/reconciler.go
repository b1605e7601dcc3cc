// Package reconcile reassembles streamed tool-call fragments into complete,
// schema-validated invocations.
//
// A Reconciler is owned by a single logical request. Fragments are buffered
// per call id in the order the adapter delivered them (never reordered);
// on the provider's end-of-call marker the buffer is parsed as one JSON
// value and validated against the tool's declared parameter schema. Each
// call id yields exactly one outcome: a complete invocation or a scoped
// validation error. Accumulators still pending when the request terminates
// are discarded; a stream that dies mid-call must not fabricate a
// completion.
package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomlabs/loom/internal/jsonx"
	"github.com/loomlabs/loom/llm"
)

// Reconciler accumulates tool-call fragments for one request.
type Reconciler struct {
	provider string
	schemas  map[string]map[string]any
	pending  map[string]*accumulator
	seen     map[string]bool // ids that already produced an outcome
}

type accumulator struct {
	name string
	buf  strings.Builder
}

// New creates a reconciler for a request's declared tools.
func New(provider string, tools []llm.ToolDefinition) *Reconciler {
	schemas := make(map[string]map[string]any, len(tools))
	for _, t := range tools {
		schemas[t.Name] = t.Parameters
	}
	return &Reconciler{
		provider: provider,
		schemas:  schemas,
		pending:  make(map[string]*accumulator),
		seen:     make(map[string]bool),
	}
}

// Start opens an accumulator for a new call id. A reused id violates the
// per-request uniqueness invariant and is rejected as invalid.
func (r *Reconciler) Start(id, name string) *llm.Error {
	if r.seen[id] || r.pending[id] != nil {
		return r.invalid(id, fmt.Errorf("duplicate tool call id %q", id))
	}
	r.pending[id] = &accumulator{name: name}
	return nil
}

// Append buffers an argument fragment in arrival order. Fragments for
// unknown ids (a start the adapter never announced) are dropped.
func (r *Reconciler) Append(id, fragment string) {
	if acc := r.pending[id]; acc != nil {
		acc.buf.WriteString(fragment)
	}
}

// Finish closes the call: the buffered fragments are parsed as one JSON
// value and validated against the declared schema. Exactly one of the
// returned values is meaningful.
func (r *Reconciler) Finish(id string) (llm.ToolCall, *llm.Error) {
	acc := r.pending[id]
	if acc == nil {
		return llm.ToolCall{}, r.invalid(id, fmt.Errorf("end of call for unknown id %q", id))
	}
	delete(r.pending, id)
	r.seen[id] = true

	raw := jsonx.NormalizeArguments(acc.buf.String())

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.ToolCall{}, r.invalid(id,
			fmt.Errorf("tool %s: arguments are not valid JSON: %w: %q", acc.name, err, jsonx.Preview(string(raw), 100)))
	}

	schema, declared := r.schemas[acc.name]
	if !declared {
		return llm.ToolCall{}, r.invalid(id, fmt.Errorf("call of undeclared tool %q", acc.name))
	}
	if len(schema) > 0 {
		if err := validate(schema, raw); err != nil {
			return llm.ToolCall{}, r.invalid(id, fmt.Errorf("tool %s: %w", acc.name, err))
		}
	}

	return llm.ToolCall{ID: id, Name: acc.name, Arguments: raw}, nil
}

// Pending returns the number of calls still awaiting their end marker.
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

// Abandon discards every pending accumulator. Called when the request
// reaches a terminal event: argument deltas already forwarded stay
// delivered, but no completion is ever emitted for an unfinished call.
func (r *Reconciler) Abandon() {
	r.pending = make(map[string]*accumulator)
}

func (r *Reconciler) invalid(id string, err error) *llm.Error {
	e := llm.NewError(r.provider, llm.ErrToolCallInvalid, err)
	e.ToolCallID = id
	return e
}

func validate(schema map[string]any, doc json.RawMessage) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader([]byte(doc)),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("arguments failed schema validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}
