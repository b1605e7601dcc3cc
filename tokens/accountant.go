package tokens

import (
	"sync"

	"github.com/loomlabs/loom/llm"
)

// Accountant accumulates authoritative token counts for one logical
// request. Counts are monotonically non-decreasing: providers report
// cumulative totals, so recording merges by field-wise maximum.
//
// An Accountant is owned by its request's task while streaming; Snapshot
// remains safe to call from other goroutines at any time.
type Accountant struct {
	mu    sync.Mutex
	usage llm.TokenUsage
}

// Record merges a provider usage update and returns the new cumulative
// snapshot.
func (a *Accountant) Record(u llm.TokenUsage) llm.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = a.usage.Merge(u)
	return a.usage
}

// Snapshot returns the current cumulative counts.
func (a *Accountant) Snapshot() llm.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}
