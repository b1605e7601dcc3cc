package engine

import (
	"time"

	"github.com/loomlabs/loom/llm"
)

// attempt is the ephemeral record of one try at a logical request. Owned by
// the engine's run loop and discarded when the request completes.
type attempt struct {
	number    int
	startedAt time.Time

	// contentDelivered is set once any content event (text, thinking, tool
	// activity) from this attempt has been forwarded. Once set, the attempt
	// cannot be retried: a replay would duplicate delivered output.
	contentDelivered bool

	err *llm.Error
}
