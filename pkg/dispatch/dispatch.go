// Package dispatch runs one aggregated search: it resolves the engine
// selection, fans out a goroutine per engine and answerer, and merges their
// outcomes through a single consumer into the result container. The
// container is never touched from more than one goroutine.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/metisearch/metis/pkg/answerers"
	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/metrics"
	"github.com/metisearch/metis/pkg/plugins"
	"github.com/metisearch/metis/pkg/processor"
	"github.com/metisearch/metis/pkg/results"
)

var logger = log.For("dispatch")

// Options configures a dispatcher for the lifetime of the process.
type Options struct {
	// Timeout bounds the whole search; engines still running when it
	// expires are recorded as timed out.
	Timeout time.Duration

	// MaxTimeout caps per-request timeout overrides.
	MaxTimeout time.Duration

	// Weights maps engine instance names to score weights.
	Weights map[string]float64

	// Rule selects the duplicate score combination rule.
	Rule results.ScoreRule

	// TrackingParams extends the URL dedup denylist.
	TrackingParams []string

	// Answerers run alongside the engines on every query.
	Answerers []answerers.Answerer

	// Plugins holds the query and result hooks. Nil means no hooks.
	Plugins *plugins.Registry

	// OnOutcome, when set, observes every terminal engine outcome. Used to
	// persist engine health history.
	OnOutcome func(query core.Query, outcome core.EngineOutcome)
}

// Dispatcher coordinates searches against a fixed engine registry.
type Dispatcher struct {
	registry *core.Registry
	proc     *processor.Processor
	opts     Options
}

func New(registry *core.Registry, proc *processor.Processor, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.MaxTimeout < opts.Timeout {
		opts.MaxTimeout = opts.Timeout
	}
	return &Dispatcher{registry: registry, proc: proc, opts: opts}
}

// SearchResult is everything one search produced: the frozen container plus
// the paging state for deriving the next page request.
type SearchResult struct {
	Frozen  *results.Frozen
	Paging  *results.PagingState
	Elapsed time.Duration
}

// NextPage derives the follow-up query for the page after a finished search,
// restricted to the engines that can serve it.
func NextPage(query core.Query, result *SearchResult) (core.Query, bool) {
	if result == nil {
		return core.Query{}, false
	}
	return results.NextPageRequest(query, result.Paging)
}

// RunOption tweaks a single search.
type RunOption func(*runOptions)

type runOptions struct {
	timeout   time.Duration
	onOutcome func(core.EngineOutcome)
}

// WithTimeout overrides the global timeout for this search, capped at the
// configured maximum.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// WithStreaming delivers each merged outcome to the callback as it arrives.
// The callback runs on the merge goroutine; it must not block.
func WithStreaming(callback func(core.EngineOutcome)) RunOption {
	return func(o *runOptions) { o.onOutcome = callback }
}

// Run performs one aggregated search. It returns an error only when the
// query itself is unusable; individual engine failures surface as
// diagnostics in the result.
func (d *Dispatcher) Run(ctx context.Context, query core.Query, options ...RunOption) (*SearchResult, error) {
	start := time.Now()

	ropts := &runOptions{timeout: d.opts.Timeout}
	for _, opt := range options {
		opt(ropts)
	}
	if ropts.timeout <= 0 || ropts.timeout > d.opts.MaxTimeout {
		ropts.timeout = d.opts.MaxTimeout
	}

	if err := query.Validate(); err != nil {
		return nil, err
	}

	if d.opts.Plugins != nil {
		var err error
		query, err = d.opts.Plugins.ApplyQueryHooks(query)
		if err != nil {
			return nil, err
		}
	}

	selection, err := SelectEngines(d.registry.GetAllEngines(), query)
	if err != nil {
		return nil, err
	}

	dispatchOrder := make([]string, 0, len(selection)+len(d.opts.Answerers))
	for _, engine := range selection {
		dispatchOrder = append(dispatchOrder, engine.Name())
	}
	for _, a := range d.opts.Answerers {
		dispatchOrder = append(dispatchOrder, a.Name())
	}

	container := results.NewContainer(results.Options{
		Weights:        d.opts.Weights,
		Rule:           d.opts.Rule,
		TrackingParams: d.opts.TrackingParams,
		DispatchOrder:  dispatchOrder,
	})

	dctx, cancel := context.WithTimeout(ctx, ropts.timeout)
	defer cancel()

	// Buffered to the participant count so producers never block after the
	// consumer gives up at the deadline.
	outcomeCh := make(chan core.EngineOutcome, len(dispatchOrder))

	logger.Debugf("dispatching query %s to %d engines, %d answerers",
		query.ID, len(selection), len(d.opts.Answerers))

	for _, engine := range selection {
		go func(engine core.Engine) {
			outcomeCh <- d.proc.Process(dctx, engine, query)
		}(engine)
	}
	for _, a := range d.opts.Answerers {
		go func(a answerers.Answerer) {
			outcomeCh <- runAnswerer(dctx, a, query)
		}(a)
	}

	// Single consumer: all container mutation happens here.
	pending := make(map[string]bool, len(dispatchOrder))
	for _, name := range dispatchOrder {
		pending[name] = true
	}
	succeeded := make(map[string]int, len(selection))

	for len(pending) > 0 {
		select {
		case outcome := <-outcomeCh:
			delete(pending, outcome.Engine)
			container.AddOutcome(outcome)
			if outcome.Kind == core.OutcomeSuccess {
				succeeded[outcome.Engine] = len(outcome.Records)
			}
			d.observeOutcome(query, outcome, ropts)
		case <-dctx.Done():
			// Whatever is still missing is out of time. The processor
			// goroutines unwind on their own through the context.
			for name := range pending {
				outcome := core.EngineOutcome{
					Engine:  name,
					Kind:    core.OutcomeTimeout,
					Err:     dctx.Err(),
					Elapsed: time.Since(start),
				}
				container.AddOutcome(outcome)
				d.observeOutcome(query, outcome, ropts)
			}
			pending = nil
		}
	}

	paging := results.NewPagingState()
	for _, engine := range selection {
		caps := engine.Capabilities()
		count, ok := succeeded[engine.Name()]
		supported := ok && count > 0 && caps.Paging &&
			(caps.MaxPage == 0 || query.PageNo+1 <= caps.MaxPage)
		paging.SetSupported(engine.Name(), supported)
	}

	frozen := container.Finalize(query)
	d.applyResultHooks(frozen)
	elapsed := time.Since(start)
	metrics.SearchDuration.Observe(elapsed.Seconds())
	logger.Debugf("query %s finished: %d results, %d engine errors, %v",
		query.ID, len(frozen.Main), len(frozen.EngineErrors), elapsed)

	return &SearchResult{Frozen: frozen, Paging: paging, Elapsed: elapsed}, nil
}

// applyResultHooks runs the result hooks over the finalized main results.
// Hooks see merged records, after deduplication and scoring; a hook that
// reports drop removes the record from the output.
func (d *Dispatcher) applyResultHooks(frozen *results.Frozen) {
	if d.opts.Plugins == nil || len(frozen.Main) == 0 {
		return
	}
	kept := make([]results.MergedRecord, 0, len(frozen.Main))
	for _, merged := range frozen.Main {
		record, keep := d.opts.Plugins.ApplyResultHooks(merged.ResultRecord)
		if !keep {
			continue
		}
		merged.ResultRecord = record
		kept = append(kept, merged)
	}
	frozen.Main = kept
}

func (d *Dispatcher) observeOutcome(query core.Query, outcome core.EngineOutcome, ropts *runOptions) {
	if ropts.onOutcome != nil {
		ropts.onOutcome(outcome)
	}
	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(query, outcome)
	}
}

// runAnswerer wraps an answerer invocation into the same outcome shape the
// processor produces for engines.
func runAnswerer(ctx context.Context, a answerers.Answerer, query core.Query) (outcome core.EngineOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = core.EngineOutcome{
				Engine:  a.Name(),
				Kind:    core.OutcomeException,
				Err:     fmt.Errorf("answerer panic: %v", r),
				Elapsed: time.Since(start),
			}
		}
	}()

	records, err := a.Answer(ctx, query)
	if err != nil {
		return core.EngineOutcome{
			Engine:  a.Name(),
			Kind:    core.OutcomeException,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
	return core.EngineOutcome{
		Engine:  a.Name(),
		Kind:    core.OutcomeSuccess,
		Records: records,
		Elapsed: time.Since(start),
	}
}
