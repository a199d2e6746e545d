package photos

import (
	"log"
	"sync"
	"time"
)

// hostBreaker stops fetching from an image host that keeps failing. Opens
// after consecutiveLimit failures in a row and closes again once the reset
// timeout has passed.
type hostBreaker struct {
	consecutiveLimit int
	resetTimeout     time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	consecutiveFailures int
	open                bool
	lastFailure         time.Time
}

func newHostBreaker(consecutiveLimit int, resetTimeout time.Duration) *hostBreaker {
	return &hostBreaker{
		consecutiveLimit: consecutiveLimit,
		resetTimeout:     resetTimeout,
		hosts:            make(map[string]*hostState),
	}
}

// CanProceed reports whether the host accepts another fetch attempt.
func (b *hostBreaker) CanProceed(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok || !st.open {
		return true
	}
	if time.Since(st.lastFailure) > b.resetTimeout {
		// half-open: 次の1回を試させる
		st.open = false
		st.consecutiveFailures = 0
		return true
	}
	return false
}

// RecordSuccess resets the failure streak for a host.
func (b *hostBreaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.hosts[host]; ok {
		st.consecutiveFailures = 0
	}
}

// RecordFailure counts a failed fetch and opens the host when the streak
// reaches the limit.
func (b *hostBreaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok {
		st = &hostState{}
		b.hosts[host] = st
	}
	st.consecutiveFailures++
	st.lastFailure = time.Now()

	if !st.open && st.consecutiveFailures >= b.consecutiveLimit {
		st.open = true
		log.Printf("Photos: host %s blocked after %d consecutive failures, retry after %v",
			host, st.consecutiveFailures, b.resetTimeout)
	}
}
