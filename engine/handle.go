package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/tokens"
)

// eventBuffer is the channel capacity between the run loop and the caller.
// Sends still block (preserving back-pressure) once the caller falls this
// far behind.
const eventBuffer = 16

// Handle is the caller's view of one in-flight logical request.
//
// Events delivers a lazy, finite sequence ending with exactly one terminal
// event (Stop, a final *llm.Error, or a Cancelled error); the channel is
// closed after it. The sequence is not restartable: to retry from the
// caller's side, submit a fresh request.
type Handle struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	events chan llm.Event
	done   chan struct{}
	acct   *tokens.Accountant

	mu    sync.Mutex
	state State
	err   *llm.Error
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan llm.Event, eventBuffer),
		done:   make(chan struct{}),
		acct:   &tokens.Accountant{},
		state:  StatePending,
	}
}

// ID returns the request's unique id.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Events returns the request's event stream. The caller must drain it.
func (h *Handle) Events() <-chan llm.Event {
	return h.events
}

// Cancel requests cooperative cancellation. It is a silent no-op once the
// request has reached a terminal state.
func (h *Handle) Cancel() {
	h.mu.Lock()
	terminal := h.state.Terminal()
	h.mu.Unlock()
	if terminal {
		return
	}
	h.cancel()
}

// Done is closed when the request reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the terminal error, if the request failed or was cancelled.
func (h *Handle) Err() *llm.Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Usage returns the cumulative token counts recorded so far. After Done it
// is the request's final accounting.
func (h *Handle) Usage() llm.TokenUsage {
	return h.acct.Snapshot()
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// finish records the terminal state and releases everything the run loop
// owns. Must be called exactly once.
func (h *Handle) finish(s State, err *llm.Error) {
	h.mu.Lock()
	h.state = s
	h.err = err
	h.mu.Unlock()
	h.cancel()
	close(h.events)
	close(h.done)
}
