package processor

import (
	"sync"
	"time"

	"github.com/metisearch/metis/pkg/metrics"
)

// Breaker implements the per-engine circuit breaker: after a configured
// number of consecutive transient failures an engine is suspended and the
// processor stops calling its adapter. The suspension window doubles on
// repeated trips up to a maximum, and once it expires a single trial call is
// let through before the breaker decides again.
type Breaker struct {
	threshold  int
	suspend    time.Duration
	maxSuspend time.Duration

	mu     sync.Mutex
	states map[string]*breakerState

	// now is overridable in tests.
	now func() time.Time
}

type breakerState struct {
	consecutive int
	trips       int
	until       time.Time
	trial       bool
}

func NewBreaker(threshold int, suspend, maxSuspend time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if suspend <= 0 {
		suspend = time.Minute
	}
	if maxSuspend < suspend {
		maxSuspend = suspend
	}
	return &Breaker{
		threshold:  threshold,
		suspend:    suspend,
		maxSuspend: maxSuspend,
		states:     make(map[string]*breakerState),
		now:        time.Now,
	}
}

// Allow reports whether the engine may be called right now. When the breaker
// is open it returns false together with the suspension expiry. After the
// window elapses exactly one trial call is allowed through until its outcome
// is recorded.
func (b *Breaker) Allow(engine string) (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.states[engine]
	if !exists || state.until.IsZero() {
		return true, time.Time{}
	}

	if b.now().Before(state.until) {
		return false, state.until
	}

	if state.trial {
		return false, state.until
	}
	state.trial = true
	return true, time.Time{}
}

// RecordSuccess resets the engine's failure streak and closes the breaker.
func (b *Breaker) RecordSuccess(engine string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.states, engine)
}

// RecordFailure counts one transient failure. When the streak reaches the
// threshold, or a trial call fails, the breaker opens; repeated trips double
// the window.
func (b *Breaker) RecordFailure(engine string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.states[engine]
	if !exists {
		state = &breakerState{}
		b.states[engine] = state
	}

	// A failed trial call re-opens the breaker immediately; the upstream is
	// still unhealthy, so the full streak does not have to be re-earned.
	trialFailed := state.trial
	state.trial = false
	state.consecutive++
	if !trialFailed && state.consecutive < b.threshold {
		return
	}

	window := b.suspend << state.trips
	if window > b.maxSuspend || window <= 0 {
		window = b.maxSuspend
	}
	state.until = b.now().Add(window)
	state.trips++
	state.consecutive = 0
	metrics.EngineSuspensions.WithLabelValues(engine).Inc()
}

// Suspensions returns the currently open suspensions, used for persistence.
func (b *Breaker) Suspensions() map[string]time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]time.Time)
	now := b.now()
	for engine, state := range b.states {
		if !state.until.IsZero() && now.Before(state.until) {
			out[engine] = state.until
		}
	}
	return out
}

// Restore seeds suspensions loaded from storage, typically at startup.
// Already-expired entries are ignored.
func (b *Breaker) Restore(suspensions map[string]time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for engine, until := range suspensions {
		if now.Before(until) {
			b.states[engine] = &breakerState{until: until, trips: 1}
		}
	}
}
