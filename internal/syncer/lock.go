package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SkipReason explains why a sync tick did not fetch.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipInProgress  SkipReason = "concurrent_fetch_in_progress"
	SkipRateLimited SkipReason = "rate_limited"
)

// FetchLocker serializes fetches per (tenant, resource) and enforces a
// minimum interval between successive fetch starts. Acquire returns ok=false
// with a reason when the caller must skip; on ok=true the caller must call
// release exactly once when the fetch (including persistence) finishes.
type FetchLocker interface {
	Acquire(ctx context.Context, tenantID, resource string) (release func(), reason SkipReason, ok bool)
}

type lockState struct {
	inProgress bool
	lastFetch  time.Time
}

// MemoryLocker is the single-process FetchLocker. The last-fetch stamp is
// taken when the lock is acquired, not when it is released, so a slow fetch
// still counts against the interval.
type MemoryLocker struct {
	mu          sync.Mutex
	states      map[string]*lockState
	minInterval time.Duration
	clock       clockwork.Clock
}

// NewMemoryLocker creates a MemoryLocker with the given minimum interval
// between fetch starts for the same (tenant, resource).
func NewMemoryLocker(minInterval time.Duration, clk clockwork.Clock) *MemoryLocker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &MemoryLocker{
		states:      make(map[string]*lockState),
		minInterval: minInterval,
		clock:       clk,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, tenantID, resource string) (func(), SkipReason, bool) {
	key := tenantID + "/" + resource

	l.mu.Lock()
	defer l.mu.Unlock()

	st, found := l.states[key]
	if !found {
		st = &lockState{}
		l.states[key] = st
	}
	if st.inProgress {
		return nil, SkipInProgress, false
	}
	now := l.clock.Now()
	if !st.lastFetch.IsZero() && now.Sub(st.lastFetch) < l.minInterval {
		return nil, SkipRateLimited, false
	}
	st.inProgress = true
	st.lastFetch = now

	release := func() {
		l.mu.Lock()
		st.inProgress = false
		l.mu.Unlock()
	}
	return release, SkipNone, true
}
