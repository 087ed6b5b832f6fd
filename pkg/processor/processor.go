// Package processor wraps a single engine invocation with timeout
// enforcement, failure classification, bounded retries with egress rotation,
// and the circuit breaker. It turns every possible adapter behavior,
// including panics, into exactly one EngineOutcome.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/engines/httpx"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/metrics"
	"github.com/metisearch/metis/pkg/normalize"
)

type Options struct {
	// DefaultTimeout applies to engines without a timeout override.
	DefaultTimeout time.Duration

	// RetryCount bounds retries of transient network failures.
	RetryCount int

	// RetryInterval is the pause between retry attempts.
	RetryInterval time.Duration

	// EgressProxies are rotated through on successive attempts.
	EgressProxies []string

	// Timeouts holds per-engine timeout overrides, keyed by engine name.
	// An entry here takes precedence over the engine's own timeout.
	Timeouts map[string]time.Duration

	// Breaker is optional; without it no suspension policy applies.
	Breaker *Breaker
}

type Processor struct {
	defaultTimeout time.Duration
	retryCount     int
	retryInterval  time.Duration
	egress         []string
	timeouts       map[string]time.Duration
	breaker        *Breaker
}

func New(opts Options) *Processor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 3 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 250 * time.Millisecond
	}
	return &Processor{
		defaultTimeout: opts.DefaultTimeout,
		retryCount:     opts.RetryCount,
		retryInterval:  opts.RetryInterval,
		egress:         opts.EgressProxies,
		timeouts:       opts.Timeouts,
		breaker:        opts.Breaker,
	}
}

// Process runs one engine invocation to a terminal outcome. The per-engine
// timeout applies to each attempt; ctx carries the overall query deadline,
// so no retry starts once the global budget is spent. A late upstream
// response after timeout is discarded by the cancelled attempt context.
func (p *Processor) Process(ctx context.Context, engine core.Engine, query core.Query) core.EngineOutcome {
	name := engine.Name()
	logger := log.For(name)

	if p.breaker != nil {
		if allowed, until := p.breaker.Allow(name); !allowed {
			logger.Debugf("suspended until %s, skipping fetch", until.Format(time.RFC3339))
			outcome := core.EngineOutcome{
				Engine:         name,
				Kind:           core.OutcomeSuspended,
				SuspendedUntil: until,
			}
			metrics.ObserveOutcome(name, string(outcome.Kind), 0, false)
			return outcome
		}
	}

	timeout := p.timeouts[name]
	if timeout <= 0 {
		timeout = engine.Timeout()
	}
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	start := time.Now()
	attempts := 0
	var raws []core.RawResult

	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.EngineRetries.WithLabelValues(name).Inc()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if len(p.egress) > 0 {
			proxy := p.egress[(attempts-1)%len(p.egress)]
			attemptCtx = httpx.WithEgress(attemptCtx, proxy)
			logger.Debugf("attempt %d via egress %s", attempts, proxy)
		}

		fetched, err := p.fetch(attemptCtx, engine, query)
		if err != nil {
			if kind, _ := Classify(err); !kind.Retryable() {
				return backoff.Permanent(err)
			}
			logger.Debugf("attempt %d failed, may retry: %v", attempts, err)
			return err
		}
		raws = fetched
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryInterval), uint64(p.retryCount)),
		ctx,
	)
	err := backoff.Retry(operation, policy)
	elapsed := time.Since(start)

	outcome := core.EngineOutcome{
		Engine:   name,
		Elapsed:  elapsed,
		Attempts: attempts,
	}

	if err != nil {
		outcome.Kind, outcome.HTTPStatus = Classify(err)
		outcome.Err = err
		logger.Warnf("fetch failed after %d attempt(s) in %v: %s (%v)", attempts, elapsed, outcome.Kind, err)
	} else {
		records, skipped := normalize.Records(name, raws)
		if skipped > 0 {
			logger.Debugf("skipped %d malformed results", skipped)
		}
		if len(records) == 0 && len(raws) > 0 {
			outcome.Kind = core.OutcomeParseError
			outcome.Err = &core.PayloadError{Reason: fmt.Sprintf("all %d results malformed", len(raws))}
			logger.Warnf("discarded whole response: %v", outcome.Err)
		} else {
			outcome.Kind = core.OutcomeSuccess
			outcome.Records = records
			logger.Debugf("normalized %d results in %v", len(records), elapsed)
		}
	}

	p.feedBreaker(name, outcome.Kind)
	metrics.ObserveOutcome(name, string(outcome.Kind), elapsed, outcome.Kind == core.OutcomeSuccess)
	return outcome
}

// fetch invokes the adapter with panic containment: an adapter bug becomes
// an exception outcome, never a crashed dispatcher goroutine.
func (p *Processor) fetch(ctx context.Context, engine core.Engine, query core.Query) (raws []core.RawResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			raws = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return engine.Fetch(ctx, query)
}

func (p *Processor) feedBreaker(engine string, kind core.OutcomeKind) {
	if p.breaker == nil {
		return
	}
	switch kind {
	case core.OutcomeSuccess:
		p.breaker.RecordSuccess(engine)
	case core.OutcomeTimeout, core.OutcomeNetworkErr, core.OutcomeRateLimited:
		p.breaker.RecordFailure(engine)
	}
}
