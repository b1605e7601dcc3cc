package engine

import (
	"sync"
	"time"
)

// providerLimits tracks rate-limit back-pressure per provider. The state is
// shared by every concurrent request to the same provider, so access goes
// through this narrow mutate-and-read interface.
type providerLimits struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newProviderLimits() *providerLimits {
	return &providerLimits{until: make(map[string]time.Time)}
}

// Delay returns how long a new attempt against the provider should wait
// before starting. Zero when the provider is not currently limited.
func (l *providerLimits) Delay(provider string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.until[provider]; ok && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Block marks the provider limited for d from now. A shorter window never
// overwrites a longer one already in place.
func (l *providerLimits) Block(provider string, now time.Time, d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t := now.Add(d)
	if cur, ok := l.until[provider]; !ok || t.After(cur) {
		l.until[provider] = t
	}
}
