package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Analytics-Router/pkg/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 6 * time.Second

	// jitterFraction of the backoff is the upper bound of the random extra delay.
	jitterFraction = 0.25
)

// Attempt describes one failed invocation inside Call.
type Attempt struct {
	Operation string
	Number    int
	Err       error
	Class     Class
	// Delay is the sleep before the next attempt; zero when no retry follows.
	Delay time.Duration
}

type Policy struct {
	// Name labels logs and metrics.
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	Classifier Classifier
	// RetryUnknown treats unclassified errors as transient.
	RetryUnknown bool

	Sleep     func(ctx context.Context, d time.Duration) error
	Jitter    func(limit time.Duration) time.Duration
	OnAttempt func(Attempt)
}

func DefaultPolicy(name string) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Result is the outcome of Call. Value is meaningful only when OK is true and
// Err only when it is false.
type Result[T any] struct {
	OK       bool
	Value    T
	Err      error
	Attempts int
	// Exhausted is set when the last error was retryable but no attempts remained.
	Exhausted bool
}

// Error returns nil on success, the last error for fail-fast outcomes, and the
// last error wrapped with ErrRetryExhausted when attempts ran out.
func (r Result[T]) Error() error {
	if r.OK {
		return nil
	}
	if r.Exhausted {
		return fmt.Errorf("%w after %d attempts: %w", contractx.ErrRetryExhausted, r.Attempts, r.Err)
	}
	return r.Err
}

// Call runs op until it succeeds, fails with a non-retryable error or runs out
// of attempts. It never panics on operation errors and always reports the
// real number of invocations.
func Call[T any](ctx context.Context, op func(ctx context.Context) (T, error), p Policy) Result[T] {
	p = p.normalized()

	var res Result[T]
	for i := 0; i < p.MaxAttempts; i++ {
		res.Attempts++
		v, err := op(ctx)
		if err == nil {
			res.OK = true
			res.Value = v
			res.Err = nil
			res.Exhausted = false
			metricsx.RetryCalls.WithLabelValues(p.Name, "success").Inc()
			return res
		}

		res.Err = err
		class := p.Classifier.Classify(err)
		metricsx.RetryAttempts.WithLabelValues(p.Name, string(class)).Inc()

		attempt := Attempt{Operation: p.Name, Number: i + 1, Err: err, Class: class}
		retryable := class == ClassTransient || (class == ClassUnknown && p.RetryUnknown)
		if !retryable {
			p.observe(attempt)
			break
		}
		if i == p.MaxAttempts-1 {
			res.Exhausted = true
			p.observe(attempt)
			break
		}

		attempt.Delay = Delay(p, i)
		p.observe(attempt)
		if err := p.Sleep(ctx, attempt.Delay); err != nil {
			break
		}
	}

	metricsx.RetryCalls.WithLabelValues(p.Name, "failure").Inc()
	return res
}

// Backoff is the pre-jitter delay before retry index i (0-based).
func Backoff(p Policy, i int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay) * math.Pow(2, float64(i))
	if d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delay adds up to 25% jitter on top of Backoff; it never shortens the backoff.
func Delay(p Policy, i int) time.Duration {
	p = p.normalized()
	b := Backoff(p, i)
	limit := time.Duration(float64(b) * jitterFraction)
	j := p.Jitter(limit)
	if j < 0 {
		j = 0
	}
	if j > limit {
		j = limit
	}
	return b + j
}

func (p Policy) normalized() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Classifier.NonRetryable == nil && p.Classifier.Transient == nil {
		p.Classifier = DefaultClassifier
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Jitter == nil {
		p.Jitter = uniformJitter
	}
	return p
}

func (p Policy) observe(a Attempt) {
	ev := log.Debug()
	if a.Delay > 0 {
		ev = log.Warn()
	}
	ev.Str("operation", a.Operation).
		Int("attempt", a.Number).
		Str("class", string(a.Class)).
		Dur("next_delay", a.Delay).
		Err(a.Err).
		Msg("operation attempt failed")

	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
