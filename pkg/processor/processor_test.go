package processor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/engines/httpx"
)

type fakeEngine struct {
	name    string
	timeout time.Duration
	fetch   func(ctx context.Context, query core.Query) ([]core.RawResult, error)
}

func (f *fakeEngine) Type() string { return "fake" }
func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(ctx context.Context, query core.Query) ([]core.RawResult, error) {
	return f.fetch(ctx, query)
}

func (f *fakeEngine) Capabilities() core.Capabilities { return core.Capabilities{} }
func (f *fakeEngine) Categories() []string            { return []string{"general"} }
func (f *fakeEngine) Weight() float64                 { return 1.0 }
func (f *fakeEngine) Timeout() time.Duration          { return f.timeout }
func (f *fakeEngine) ConfigType() interface{}         { return &struct{}{} }
func (f *fakeEngine) Close() error                    { return nil }

func (f *fakeEngine) Factory(name string, config interface{}) (core.Engine, error) {
	return &fakeEngine{name: name}, nil
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestProcessSuccess(t *testing.T) {
	engine := &fakeEngine{
		name: "ok",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			return []core.RawResult{
				{"url": "https://a.com", "title": "A"},
				{"url": "https://b.com", "title": "B"},
			}, nil
		},
	}

	p := New(Options{DefaultTimeout: time.Second})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeSuccess {
		t.Fatalf("Expected success, got %s (%v)", outcome.Kind, outcome.Err)
	}
	if len(outcome.Records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(outcome.Records))
	}
	if outcome.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", outcome.Attempts)
	}
}

func TestProcessTimeout(t *testing.T) {
	engine := &fakeEngine{
		name:    "slow",
		timeout: 50 * time.Millisecond,
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return []core.RawResult{{"url": "https://late.com"}}, nil
			}
		},
	}

	p := New(Options{DefaultTimeout: time.Second})
	start := time.Now()
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeTimeout {
		t.Fatalf("Expected timeout, got %s", outcome.Kind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Process blocked for %v despite 50ms engine timeout", elapsed)
	}
	if len(outcome.Records) != 0 {
		t.Error("Late results must be discarded")
	}
}

func TestProcessAuthErrorNotRetried(t *testing.T) {
	calls := 0
	engine := &fakeEngine{
		name: "auth",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			calls++
			return nil, &core.StatusError{Status: 403}
		},
	}

	p := New(Options{DefaultTimeout: time.Second, RetryCount: 3, RetryInterval: time.Millisecond})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeAuthError {
		t.Fatalf("Expected auth_error, got %s", outcome.Kind)
	}
	if outcome.HTTPStatus != 403 {
		t.Errorf("Expected status 403, got %d", outcome.HTTPStatus)
	}
	if calls != 1 {
		t.Errorf("Auth failures must not be retried, adapter called %d times", calls)
	}
}

func TestProcessNetworkErrorRetriedWithEgressRotation(t *testing.T) {
	var proxies []string
	engine := &fakeEngine{
		name: "flaky",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			if proxy, ok := httpx.EgressFromContext(ctx); ok {
				proxies = append(proxies, proxy)
			}
			return nil, fakeNetError{}
		},
	}

	p := New(Options{
		DefaultTimeout: time.Second,
		RetryCount:     2,
		RetryInterval:  time.Millisecond,
		EgressProxies:  []string{"socks5://one:1080", "socks5://two:1080"},
	})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeNetworkErr {
		t.Fatalf("Expected network_error, got %s", outcome.Kind)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", outcome.Attempts)
	}
	want := []string{"socks5://one:1080", "socks5://two:1080", "socks5://one:1080"}
	if len(proxies) != len(want) {
		t.Fatalf("Expected %d egress identities, got %v", len(want), proxies)
	}
	for i := range want {
		if proxies[i] != want[i] {
			t.Errorf("Attempt %d used egress %s, want %s", i+1, proxies[i], want[i])
		}
	}
}

func TestProcessNoRetryAfterGlobalDeadline(t *testing.T) {
	calls := 0
	engine := &fakeEngine{
		name: "deadline",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			calls++
			return nil, fakeNetError{}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p := New(Options{DefaultTimeout: time.Second, RetryCount: 100, RetryInterval: 50 * time.Millisecond})
	p.Process(ctx, engine, core.NewQuery("test"))

	if calls > 2 {
		t.Errorf("Expected retries to stop at the global deadline, adapter called %d times", calls)
	}
}

func TestProcessAdapterPanic(t *testing.T) {
	engine := &fakeEngine{
		name: "buggy",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			panic("nil map write")
		},
	}

	p := New(Options{DefaultTimeout: time.Second})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeException {
		t.Fatalf("Expected exception, got %s", outcome.Kind)
	}
	if outcome.Err == nil {
		t.Error("Expected panic to be captured as an error")
	}
}

func TestProcessParseError(t *testing.T) {
	engine := &fakeEngine{
		name: "garbled",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			return nil, &core.PayloadError{Reason: "unexpected JSON shape"}
		},
	}

	p := New(Options{DefaultTimeout: time.Second, RetryCount: 2, RetryInterval: time.Millisecond})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeParseError {
		t.Fatalf("Expected parse_error, got %s", outcome.Kind)
	}
	if outcome.Attempts != 1 {
		t.Errorf("Parse errors must not be retried, got %d attempts", outcome.Attempts)
	}
}

func TestProcessAllRecordsMalformed(t *testing.T) {
	engine := &fakeEngine{
		name: "shapeless",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			return []core.RawResult{{"title": "no url"}, {"title": "also no url"}}, nil
		},
	}

	p := New(Options{DefaultTimeout: time.Second})
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))

	if outcome.Kind != core.OutcomeParseError {
		t.Fatalf("Expected parse_error for all-malformed batch, got %s", outcome.Kind)
	}
}

func TestProcessSuspendedByBreaker(t *testing.T) {
	calls := 0
	engine := &fakeEngine{
		name: "down",
		fetch: func(ctx context.Context, query core.Query) ([]core.RawResult, error) {
			calls++
			return nil, fakeNetError{}
		},
	}

	breaker := NewBreaker(2, time.Minute, time.Hour)
	p := New(Options{DefaultTimeout: time.Second, Breaker: breaker, RetryInterval: time.Millisecond})

	// Two failures trip the breaker.
	for i := 0; i < 2; i++ {
		outcome := p.Process(context.Background(), engine, core.NewQuery("test"))
		if outcome.Kind != core.OutcomeNetworkErr {
			t.Fatalf("Expected network_error, got %s", outcome.Kind)
		}
	}

	callsBefore := calls
	outcome := p.Process(context.Background(), engine, core.NewQuery("test"))
	if outcome.Kind != core.OutcomeSuspended {
		t.Fatalf("Expected suspended, got %s", outcome.Kind)
	}
	if outcome.SuspendedUntil.IsZero() {
		t.Error("Expected suspension expiry to be set")
	}
	if calls != callsBefore {
		t.Error("Suspended engine's adapter must not be invoked")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.OutcomeKind
	}{
		{"nil", nil, core.OutcomeSuccess},
		{"deadline", context.DeadlineExceeded, core.OutcomeTimeout},
		{"cancel", context.Canceled, core.OutcomeTimeout},
		{"status 500", &core.StatusError{Status: 500}, core.OutcomeHTTPError},
		{"status 401", &core.StatusError{Status: 401}, core.OutcomeAuthError},
		{"status 429", &core.StatusError{Status: 429}, core.OutcomeRateLimited},
		{"payload", &core.PayloadError{Reason: "bad json"}, core.OutcomeParseError},
		{"net", fakeNetError{}, core.OutcomeNetworkErr},
		{"dns", &net.DNSError{Err: "no such host"}, core.OutcomeNetworkErr},
		{"unknown", errors.New("weird"), core.OutcomeException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := Classify(tt.err)
			if kind != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, kind, tt.want)
			}
		})
	}
}
