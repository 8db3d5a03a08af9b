package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(maxAttempts int, sleeps *recordedSleeps) Policy {
	return Policy{
		Name:        "test",
		MaxAttempts: maxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Sleep:       sleeps.sleep,
		Jitter:      func(time.Duration) time.Duration { return 0 },
	}
}

func TestClassifyNonRetryableWinsOverTransient(t *testing.T) {
	t.Parallel()

	cases := []string{
		"connection forbidden",
		"403 Forbidden",
		"timeout: permission denied",
		"429 but unauthorized",
		"Invalid Token after connection reset",
		"user can view but not run queries",
	}
	for _, msg := range cases {
		if got := Classify(errors.New(msg)); got != ClassNonRetryable {
			t.Fatalf("Classify(%q) = %s, want %s", msg, got, ClassNonRetryable)
		}
	}
}

func TestClassifyTransient(t *testing.T) {
	t.Parallel()

	cases := []string{
		"503 Service Unavailable",
		"Rate limit exceeded",
		"HTTP 429",
		"request timed out",
		"read: connection reset by peer",
		"server temporarily overloaded, try again",
		"502 bad gateway",
		"504",
	}
	for _, msg := range cases {
		if got := Classify(errors.New(msg)); got != ClassTransient {
			t.Fatalf("Classify(%q) = %s, want %s", msg, got, ClassTransient)
		}
	}
}

func TestClassifyUnknownAndSpecialCases(t *testing.T) {
	t.Parallel()

	if got := Classify(errors.New("table not found in catalog")); got != ClassUnknown {
		t.Fatalf("Classify(unknown) = %s, want %s", got, ClassUnknown)
	}
	if got := Classify(nil); got != ClassUnknown {
		t.Fatalf("Classify(nil) = %s, want %s", got, ClassUnknown)
	}
	if got := Classify(fmt.Errorf("wrapped: %w", context.Canceled)); got != ClassNonRetryable {
		t.Fatalf("Classify(canceled) = %s, want %s", got, ClassNonRetryable)
	}
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "503 but do not retry" }
func (permanentErr) Permanent() bool { return true }

func TestClassifyPermanentMarker(t *testing.T) {
	t.Parallel()

	if got := Classify(fmt.Errorf("call: %w", permanentErr{})); got != ClassNonRetryable {
		t.Fatalf("Classify(permanent) = %s, want %s", got, ClassNonRetryable)
	}
}

func TestCallExhaustsTransientAttempts(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	res := Call(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", errors.New("503 Service Unavailable")
	}, testPolicy(4, sleeps))

	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Attempts != 4 || calls != 4 {
		t.Fatalf("attempts=%d calls=%d, want 4", res.Attempts, calls)
	}
	if !res.Exhausted {
		t.Fatal("expected Exhausted")
	}
	if len(sleeps.delays) != 3 {
		t.Fatalf("sleeps=%d, want 3", len(sleeps.delays))
	}
	if res.Err == nil || res.Err.Error() != "503 Service Unavailable" {
		t.Fatalf("last error = %v", res.Err)
	}
	if err := res.Error(); !errors.Is(err, contractx.ErrRetryExhausted) {
		t.Fatalf("Error() = %v, want ErrRetryExhausted", err)
	}
}

func TestCallNonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	res := Call(context.Background(), func(context.Context) (int, error) {
		return 0, errors.New("403 Forbidden")
	}, testPolicy(5, sleeps))

	if res.OK || res.Attempts != 1 {
		t.Fatalf("res = %+v, want failure after 1 attempt", res)
	}
	if len(sleeps.delays) != 0 {
		t.Fatalf("slept %v, want no sleep", sleeps.delays)
	}
	if res.Exhausted {
		t.Fatal("non-retryable failure must not be reported as exhausted")
	}
	if err := res.Error(); errors.Is(err, contractx.ErrRetryExhausted) {
		t.Fatalf("Error() = %v, should be the raw error", err)
	}
}

func TestCallUnknownFailsFastUnlessPolicyAllows(t *testing.T) {
	t.Parallel()

	op := func(context.Context) (int, error) { return 0, errors.New("weird upstream failure") }

	res := Call(context.Background(), op, testPolicy(3, &recordedSleeps{}))
	if res.Attempts != 1 {
		t.Fatalf("attempts=%d, want 1", res.Attempts)
	}

	p := testPolicy(3, &recordedSleeps{})
	p.RetryUnknown = true
	res = Call(context.Background(), op, p)
	if res.Attempts != 3 {
		t.Fatalf("attempts=%d with RetryUnknown, want 3", res.Attempts)
	}
}

func TestCallRecoversAfterOneTransientFailure(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	res := Call(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("rate limit")
		}
		return "ok", nil
	}, testPolicy(3, sleeps))

	if !res.OK || res.Value != "ok" || res.Err != nil {
		t.Fatalf("res = %+v, want success", res)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts=%d, want 2", res.Attempts)
	}
	if len(sleeps.delays) != 1 || sleeps.delays[0] != 100*time.Millisecond {
		t.Fatalf("delays=%v, want [100ms]", sleeps.delays)
	}
}

func TestCallZeroMaxAttemptsStillTriesOnce(t *testing.T) {
	t.Parallel()

	res := Call(context.Background(), func(context.Context) (int, error) {
		return 7, nil
	}, Policy{MaxAttempts: 0})
	if !res.OK || res.Attempts != 1 || res.Value != 7 {
		t.Fatalf("res = %+v", res)
	}
}

func TestCallStopsWhenContextCancelledDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := testPolicy(5, &recordedSleeps{})
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := Call(ctx, func(context.Context) (int, error) {
		return 0, errors.New("timeout")
	}, p)
	if res.Attempts != 1 {
		t.Fatalf("attempts=%d, want 1", res.Attempts)
	}
	if res.Err == nil || res.Err.Error() != "timeout" {
		t.Fatalf("err = %v, want last operation error", res.Err)
	}
}

func TestCallObserverSeesEveryFailure(t *testing.T) {
	t.Parallel()

	var seen []Attempt
	p := testPolicy(3, &recordedSleeps{})
	p.OnAttempt = func(a Attempt) { seen = append(seen, a) }

	Call(context.Background(), func(context.Context) (int, error) {
		return 0, errors.New("504 gateway timeout")
	}, p)

	if len(seen) != 3 {
		t.Fatalf("observed %d attempts, want 3", len(seen))
	}
	if seen[0].Delay == 0 || seen[2].Delay != 0 {
		t.Fatalf("unexpected delays: %v, %v", seen[0].Delay, seen[2].Delay)
	}
	for i, a := range seen {
		if a.Number != i+1 || a.Class != ClassTransient {
			t.Fatalf("attempt %d = %+v", i, a)
		}
	}
}

func TestDelayBounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	p := Policy{BaseDelay: base, MaxDelay: time.Second}
	for i := 0; i < 6; i++ {
		b := base * time.Duration(1<<i)
		if b > time.Second {
			b = time.Second
		}
		if got := Backoff(p, i); got != b {
			t.Fatalf("Backoff(%d) = %v, want %v", i, got, b)
		}
		for n := 0; n < 50; n++ {
			d := Delay(p, i)
			upper := b + time.Duration(float64(b)*0.25)
			if d < b || d > upper {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", i, d, b, upper)
			}
		}
	}
}

func TestDelayClampsMisbehavingJitter(t *testing.T) {
	t.Parallel()

	p := Policy{
		BaseDelay: time.Second,
		MaxDelay:  time.Second,
		Jitter:    func(time.Duration) time.Duration { return time.Hour },
	}
	if got := Delay(p, 0); got != 1250*time.Millisecond {
		t.Fatalf("Delay = %v, want 1.25s", got)
	}
	p.Jitter = func(time.Duration) time.Duration { return -time.Hour }
	if got := Delay(p, 0); got != time.Second {
		t.Fatalf("Delay = %v, want 1s", got)
	}
}

func TestTransportRetriesServiceUnavailable(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: NewTransport(server.Client().Transport, testPolicy(3, &recordedSleeps{}))}
	resp, err := client.Post(server.URL, "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, b := range bodies {
		if b != "payload" {
			t.Fatalf("body replay = %q, want payload", b)
		}
	}
}

func TestTransportReturnsLastResponseWhenExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: NewTransport(nil, testPolicy(2, &recordedSleeps{}))}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: NewTransport(nil, testPolicy(3, &recordedSleeps{}))}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}
