// Package resilience wraps remote calls with a timeout, retries with backoff and a
// per-dependency circuit breaker. Callers never see a fault: they receive a Result whose
// Available flag says whether Value came from the remote side or is the degraded value.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokoorder/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Kind separates idempotent reads from mutations, which are retried at most once.
type Kind int

const (
	Read Kind = iota
	Mutation
)

func (k Kind) String() string {
	if k == Mutation {
		return "mutation"
	}
	return "read"
}

// ErrTimeout is reported when a single attempt exceeds Policy.Timeout.
var ErrTimeout = errors.New("remote call timed out")

type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// Reject marks err as a business answer from a healthy remote (not found, insufficient stock).
// Rejections are never retried and do not count against the circuit breaker.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejection{err: err}
}

// IsRejected reports whether err was produced by Reject.
func IsRejected(err error) bool {
	var r *rejection
	return errors.As(err, &r)
}

// IsShortCircuited reports whether err came from an open or saturated breaker.
func IsShortCircuited(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Result is the outcome of Do.
type Result[T any] struct {
	Value     T
	Available bool
	// Err is the cause when Available is false.
	Err error
}

// Caller guards one logical remote dependency. It is safe for concurrent use.
type Caller struct {
	name    string
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Caller.
type Option func(*Caller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Caller) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Caller) { c.metrics = m }
}

// NewCaller creates a Caller named after the dependency it protects.
func NewCaller(name string, policy Policy, opts ...Option) *Caller {
	c := &Caller{
		name:   name,
		policy: policy,
		logger: zap.NewNop(),
		tracer: otel.Tracer("tokoorder/resilience"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("dependency", name))

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		MaxRequests:   1,
		Interval:      policy.Window,
		Timeout:       policy.CoolDown,
		ReadyToTrip:   c.readyToTrip,
		IsSuccessful:  isBreakerSuccess,
		OnStateChange: c.onStateChange,
	})
	c.metrics.SetBreakerState(name, float64(gobreaker.StateClosed))
	return c
}

// Name returns the dependency name.
func (c *Caller) Name() string { return c.name }

// State returns the breaker state: "closed", "half-open" or "open".
func (c *Caller) State() string { return c.breaker.State().String() }

func (c *Caller) readyToTrip(counts gobreaker.Counts) bool {
	p := c.policy
	if p.FailureThreshold > 0 && counts.ConsecutiveFailures >= p.FailureThreshold {
		return true
	}
	if p.FailureRatio > 0 && counts.Requests > 0 && counts.Requests >= p.MinRequests {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
	}
	return false
}

func (c *Caller) onStateChange(name string, from, to gobreaker.State) {
	c.logger.Warn("circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	c.metrics.SetBreakerState(name, float64(to))
}

func (c *Caller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialBackoff
	b.MaxInterval = c.policy.MaxBackoff
	b.MaxElapsedTime = 0
	return b
}

// Do runs op through the caller's timeout, retry and breaker. On success it returns the
// remote value with Available=true; on timeout, exhausted retries, open circuit or
// rejection it returns degraded with Available=false and the cause in Err.
func Do[T any](ctx context.Context, c *Caller, kind Kind, operation string, op func(context.Context) (T, error), degraded T) Result[T] {
	ctx, span := c.tracer.Start(ctx, c.name+"."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("remote.dependency", c.name),
		attribute.String("remote.operation", operation),
		attribute.String("remote.kind", kind.String()),
	)

	var value T
	attempts := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.policy.retriesFor(kind)), ctx)
	err := backoff.Retry(func() error {
		attempts++
		v, err := execute(ctx, c, op)
		if err != nil {
			if IsRejected(err) || IsShortCircuited(err) || errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			c.logger.Debug("remote call attempt failed",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		value = v
		return nil
	}, policy)

	span.SetAttributes(attribute.Int("remote.attempts", attempts))
	if err == nil {
		c.metrics.RemoteCall(c.name, operation, "ok")
		return Result[T]{Value: value, Available: true}
	}

	outcome := classify(err)
	c.metrics.RemoteCall(c.name, operation, outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("outcome", outcome),
		zap.Int("attempts", attempts),
		zap.Error(err),
	}
	if outcome == "rejected" {
		c.logger.Info("remote call rejected, using degraded value", fields...)
	} else {
		c.logger.Warn("remote call failed, using degraded value", fields...)
	}
	return Result[T]{Value: degraded, Available: false, Err: err}
}

// isBreakerSuccess keeps rejections and caller cancellations out of the failure counts.
func isBreakerSuccess(err error) bool {
	return err == nil || IsRejected(err) || errors.Is(err, context.Canceled)
}

func execute[T any](ctx context.Context, c *Caller, op func(context.Context) (T, error)) (T, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		v, err := runWithTimeout(ctx, c.policy.Timeout, op)
		if err != nil && !errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled) {
			err = fmt.Errorf("%w: %v", context.Canceled, err)
		}
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := raw.(T)
	return v, nil
}

type attemptOutcome[T any] struct {
	value T
	err   error
}

// runWithTimeout abandons op once the deadline passes, even if op ignores its context.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan attemptOutcome[T], 1)
	go func() {
		v, err := op(ctx)
		done <- attemptOutcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

func classify(err error) string {
	switch {
	case IsRejected(err):
		return "rejected"
	case IsShortCircuited(err):
		return "short_circuited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}
