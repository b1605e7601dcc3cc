package engine

import (
	"github.com/google/uuid"

	"github.com/loomlabs/loom/llm"
)

// Observer receives the engine's outbound notifications: every event
// forwarded to the caller plus request start/finish. Used for usage
// logging and telemetry collaborators. Implementations must not block;
// failures are theirs to swallow.
type Observer interface {
	RequestStarted(id uuid.UUID, provider, model string, req *llm.Request)
	EventForwarded(id uuid.UUID, seq int, ev llm.Event)
	RequestFinished(id uuid.UUID, state string, usage llm.TokenUsage)
}

// nopObserver is the default when no observer is configured.
type nopObserver struct{}

func (nopObserver) RequestStarted(uuid.UUID, string, string, *llm.Request) {}
func (nopObserver) EventForwarded(uuid.UUID, int, llm.Event)               {}
func (nopObserver) RequestFinished(uuid.UUID, string, llm.TokenUsage)      {}
