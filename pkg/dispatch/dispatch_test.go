package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/metisearch/metis/pkg/answerers"
	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/plugins"
	"github.com/metisearch/metis/pkg/processor"
)

type fakeEngine struct {
	name       string
	categories []string
	caps       core.Capabilities
	fetch      func(ctx context.Context, query core.Query) ([]core.RawResult, error)
}

func (f *fakeEngine) Type() string                    { return "fake" }
func (f *fakeEngine) Name() string                    { return f.name }
func (f *fakeEngine) Capabilities() core.Capabilities { return f.caps }
func (f *fakeEngine) Categories() []string {
	if len(f.categories) == 0 {
		return []string{"general"}
	}
	return f.categories
}
func (f *fakeEngine) Weight() float64         { return 1.0 }
func (f *fakeEngine) Timeout() time.Duration  { return 0 }
func (f *fakeEngine) ConfigType() interface{} { return &struct{}{} }
func (f *fakeEngine) Close() error            { return nil }

func (f *fakeEngine) Fetch(ctx context.Context, query core.Query) ([]core.RawResult, error) {
	return f.fetch(ctx, query)
}

func (f *fakeEngine) Factory(name string, config interface{}) (core.Engine, error) {
	clone := *f
	clone.name = name
	return &clone, nil
}

func registryWith(t *testing.T, engines ...*fakeEngine) *core.Registry {
	t.Helper()
	registry := core.NewRegistry()
	for _, engine := range engines {
		if err := registry.RegisterPrototype("fake_"+engine.name, engine); err != nil {
			t.Fatalf("registering prototype: %v", err)
		}
		if err := registry.CreateEngine(engine.name, "fake_"+engine.name, nil); err != nil {
			t.Fatalf("creating engine: %v", err)
		}
	}
	return registry
}

func rawMain(url, title string) core.RawResult {
	return core.RawResult{"url": url, "title": title}
}

func staticEngine(name string, raws ...core.RawResult) *fakeEngine {
	return &fakeEngine{
		name: name,
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			return raws, nil
		},
	}
}

func newDispatcher(t *testing.T, registry *core.Registry, opts Options) *Dispatcher {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	proc := processor.New(processor.Options{DefaultTimeout: opts.Timeout})
	return New(registry, proc, opts)
}

func TestRunMergesAcrossEngines(t *testing.T) {
	registry := registryWith(t,
		staticEngine("alpha",
			rawMain("https://shared.example.com/", "Shared"),
			rawMain("https://alpha.example.com/", "Alpha only"),
		),
		staticEngine("beta",
			rawMain("https://shared.example.com/", "Shared"),
		),
	)
	d := newDispatcher(t, registry, Options{})

	result, err := d.Run(context.Background(), core.NewQuery("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frozen := result.Frozen
	if len(frozen.Main) != 2 {
		t.Fatalf("expected 2 merged results, got %d", len(frozen.Main))
	}
	if frozen.Main[0].URL != "https://shared.example.com/" {
		t.Errorf("expected cross-engine result ranked first, got %q", frozen.Main[0].URL)
	}
	if len(frozen.Main[0].Engines) != 2 {
		t.Errorf("expected attribution to both engines, got %v", frozen.Main[0].Engines)
	}
	if len(frozen.Timings) != 2 {
		t.Errorf("expected timing entries for both engines, got %d", len(frozen.Timings))
	}
}

func TestRunPartialFailure(t *testing.T) {
	registry := registryWith(t,
		staticEngine("good", rawMain("https://example.com/", "Good")),
		&fakeEngine{
			name: "denied",
			fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
				return nil, &core.StatusError{Status: 401}
			},
		},
	)
	d := newDispatcher(t, registry, Options{})

	result, err := d.Run(context.Background(), core.NewQuery("test"))
	if err != nil {
		t.Fatalf("partial failure must not fail the search: %v", err)
	}
	if len(result.Frozen.Main) != 1 {
		t.Errorf("expected surviving results, got %d", len(result.Frozen.Main))
	}
	if len(result.Frozen.EngineErrors) != 1 {
		t.Fatalf("expected 1 engine error, got %d", len(result.Frozen.EngineErrors))
	}
	if result.Frozen.EngineErrors[0].Kind != "auth_error" {
		t.Errorf("expected auth_error diagnostic, got %s", result.Frozen.EngineErrors[0].Kind)
	}
}

func TestRunGlobalDeadline(t *testing.T) {
	registry := registryWith(t,
		staticEngine("fast", rawMain("https://example.com/", "Fast")),
		&fakeEngine{
			name: "slow",
			fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
				select {
				case <-time.After(5 * time.Second):
					return []core.RawResult{rawMain("https://slow.example.com/", "Slow")}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
	)
	d := newDispatcher(t, registry, Options{Timeout: 150 * time.Millisecond})

	start := time.Now()
	result, err := d.Run(context.Background(), core.NewQuery("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("search exceeded global deadline by too much: %v", elapsed)
	}
	if len(result.Frozen.Main) != 1 || result.Frozen.Main[0].Title != "Fast" {
		t.Errorf("expected fast engine results kept, got %+v", result.Frozen.Main)
	}
	found := false
	for _, e := range result.Frozen.EngineErrors {
		if e.Engine == "slow" && e.Kind == "timeout" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected timeout diagnostic for slow engine, got %v", result.Frozen.EngineErrors)
	}
}

func TestRunAnswerers(t *testing.T) {
	registry := registryWith(t,
		staticEngine("alpha", rawMain("https://example.com/", "Result")),
	)
	d := newDispatcher(t, registry, Options{
		Answerers: []answerers.Answerer{answerers.NewStatisticsAnswerer()},
	})

	result, err := d.Run(context.Background(), core.NewQuery("avg 2 4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Frozen.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(result.Frozen.Answers))
	}
	if result.Frozen.Answers[0].Answer != "avg(2, 4) = 3" {
		t.Errorf("unexpected answer: %q", result.Frozen.Answers[0].Answer)
	}
}

func TestRunQueryAndResultHooks(t *testing.T) {
	var sawTerms string
	registry := registryWith(t, &fakeEngine{
		name: "alpha",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			sawTerms = query.Terms
			return []core.RawResult{
				rawMain("https://example.com/page?utm_source=feed", "Page"),
			}, nil
		},
	})

	reg := plugins.NewRegistry()
	reg.AddQueryHook(rewriteHook{})
	reg.AddResultHook(&plugins.TrackerCleaner{})
	d := newDispatcher(t, registry, Options{Plugins: reg})

	result, err := d.Run(context.Background(), core.NewQuery("original"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawTerms != "rewritten" {
		t.Errorf("expected engines to see the rewritten query, got %q", sawTerms)
	}
	if result.Frozen.Main[0].URL != "https://example.com/page" {
		t.Errorf("expected tracker-cleaned URL, got %q", result.Frozen.Main[0].URL)
	}
}

type rewriteHook struct{}

func (rewriteHook) Name() string { return "rewrite" }
func (rewriteHook) OnQuery(q core.Query) (core.Query, error) {
	return q.WithTerms("rewritten"), nil
}

type recordingDropHook struct {
	seen    []core.ResultRecord
	dropURL string
}

func (h *recordingDropHook) Name() string { return "recording_drop" }
func (h *recordingDropHook) OnResult(record core.ResultRecord) (core.ResultRecord, bool) {
	h.seen = append(h.seen, record)
	return record, record.URL != h.dropURL
}

func TestRunResultHooksAfterMerge(t *testing.T) {
	registry := registryWith(t,
		staticEngine("alpha",
			rawMain("https://shared.example.com/", "Shared"),
			rawMain("https://alpha.example.com/", "Alpha only"),
		),
		staticEngine("beta",
			rawMain("https://shared.example.com/?utm_source=feed", "Shared"),
		),
	)

	hook := &recordingDropHook{dropURL: "https://alpha.example.com/"}
	reg := plugins.NewRegistry()
	reg.AddResultHook(hook)
	// Either engine may win the first-seen race for the shared link, so let
	// the tracker cleaner settle which URL ends up in the output.
	reg.AddResultHook(&plugins.TrackerCleaner{})
	d := newDispatcher(t, registry, Options{Plugins: reg})

	result, err := d.Run(context.Background(), core.NewQuery("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The hook runs once per merged entry, after deduplication: the clean
	// and tracked variants of the shared link arrive as a single record.
	if len(hook.seen) != 2 {
		t.Fatalf("expected hook to see 2 merged records, got %d", len(hook.seen))
	}

	if len(result.Frozen.Main) != 1 {
		t.Fatalf("expected 1 result after drop, got %d", len(result.Frozen.Main))
	}
	survivor := result.Frozen.Main[0]
	if survivor.URL != "https://shared.example.com/" {
		t.Errorf("unexpected surviving URL %q", survivor.URL)
	}
	if len(survivor.Engines) != 2 {
		t.Errorf("expected merged attribution to survive the hook, got %v", survivor.Engines)
	}
	// Dropping happens after scoring; the survivor keeps its combined score.
	if survivor.Score <= 1.0 {
		t.Errorf("expected combined score from both engines, got %v", survivor.Score)
	}
}

func TestRunPagingState(t *testing.T) {
	pager := staticEngine("pager", rawMain("https://example.com/1", "One"))
	pager.caps = core.Capabilities{Paging: true}
	bounded := staticEngine("bounded", rawMain("https://example.com/2", "Two"))
	bounded.caps = core.Capabilities{Paging: true, MaxPage: 1}
	flat := staticEngine("flat", rawMain("https://example.com/3", "Three"))

	registry := registryWith(t, pager, bounded, flat)
	d := newDispatcher(t, registry, Options{})

	result, err := d.Run(context.Background(), core.NewQuery("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next, ok := NextPage(core.NewQuery("test"), result)
	if !ok {
		t.Fatal("expected a next page")
	}
	if len(next.Engines) != 1 || next.Engines[0] != "pager" {
		t.Errorf("expected only the unbounded pager available, got %v", next.Engines)
	}
}

func TestRunStreaming(t *testing.T) {
	registry := registryWith(t,
		staticEngine("alpha", rawMain("https://example.com/", "One")),
		staticEngine("beta", rawMain("https://example.org/", "Two")),
	)
	d := newDispatcher(t, registry, Options{})

	var streamed []core.EngineOutcome
	_, err := d.Run(context.Background(), core.NewQuery("test"),
		WithStreaming(func(o core.EngineOutcome) { streamed = append(streamed, o) }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streamed) != 2 {
		t.Errorf("expected 2 streamed outcomes, got %d", len(streamed))
	}
}

func TestRunRejectsInvalidQuery(t *testing.T) {
	registry := registryWith(t, staticEngine("alpha"))
	d := newDispatcher(t, registry, Options{})
	if _, err := d.Run(context.Background(), core.NewQuery("   ")); err == nil {
		t.Fatal("expected empty query rejected")
	}
}

func TestSelectEngines(t *testing.T) {
	general := staticEngine("general1")
	it := staticEngine("it1")
	it.categories = []string{"it"}
	german := staticEngine("german1")
	german.caps = core.Capabilities{Locales: []string{"de"}}
	pager := staticEngine("pager1")
	pager.caps = core.Capabilities{Paging: true}

	engines := map[string]core.Engine{
		"general1": general,
		"it1":      it,
		"german1":  german,
		"pager1":   pager,
	}

	names := func(selection []core.Engine) []string {
		out := make([]string, len(selection))
		for i, e := range selection {
			out[i] = e.Name()
		}
		return out
	}

	t.Run("default category", func(t *testing.T) {
		selection, err := SelectEngines(engines, core.NewQuery("x"))
		if err != nil {
			t.Fatal(err)
		}
		got := names(selection)
		if len(got) != 3 {
			t.Errorf("expected general engines only, got %v", got)
		}
	})

	t.Run("category filter", func(t *testing.T) {
		q := core.NewQuery("x")
		q.Categories = []string{"it"}
		selection, err := SelectEngines(engines, q)
		if err != nil {
			t.Fatal(err)
		}
		if got := names(selection); len(got) != 1 || got[0] != "it1" {
			t.Errorf("expected it1, got %v", got)
		}
	})

	t.Run("explicit engines", func(t *testing.T) {
		q := core.NewQuery("x")
		q.Engines = []string{"it1", "general1"}
		selection, err := SelectEngines(engines, q)
		if err != nil {
			t.Fatal(err)
		}
		if got := names(selection); len(got) != 2 {
			t.Errorf("expected both named engines, got %v", got)
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		q := core.NewQuery("x")
		q.Engines = []string{"missing"}
		if _, err := SelectEngines(engines, q); err == nil {
			t.Error("expected error for unknown engine name")
		}
	})

	t.Run("exclusion", func(t *testing.T) {
		q := core.NewQuery("x")
		q.ExcludedEngines = []string{"general1", "pager1", "german1"}
		selection, err := SelectEngines(engines, q)
		if err == nil {
			t.Errorf("expected empty selection error, got %v", names(selection))
		}
	})

	t.Run("language filter", func(t *testing.T) {
		q := core.NewQuery("x")
		q.Language = "de"
		selection, err := SelectEngines(engines, q)
		if err != nil {
			t.Fatal(err)
		}
		// Language-agnostic engines always match; german1 matches "de".
		if got := names(selection); len(got) != 3 {
			t.Errorf("unexpected selection for de: %v", got)
		}
	})

	t.Run("page depth filter", func(t *testing.T) {
		q := core.NewQuery("x").WithPage(2)
		selection, err := SelectEngines(engines, q)
		if err != nil {
			t.Fatal(err)
		}
		if got := names(selection); len(got) != 1 || got[0] != "pager1" {
			t.Errorf("expected only paging-capable engine for page 2, got %v", got)
		}
	})
}
