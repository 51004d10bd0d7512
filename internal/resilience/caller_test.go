package resilience_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tokoorder/internal/metrics"
	"tokoorder/internal/resilience"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("connection refused")

func testPolicy() resilience.Policy {
	return resilience.Policy{
		Timeout:          time.Second,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		FailureThreshold: 3,
		CoolDown:         100 * time.Millisecond,
	}
}

// countingOp returns an operation that fails for the first failures calls and then succeeds.
func countingOp(calls *int32, failures int32) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(calls, 1)
		if n <= failures {
			return "", errBoom
		}
		return "remote", nil
	}
}

func TestDo_Success(t *testing.T) {
	caller := resilience.NewCaller("user-service", testPolicy())
	var calls int32

	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", countingOp(&calls, 0), "degraded")

	assert.True(t, res.Available)
	assert.Equal(t, "remote", res.Value)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(1), calls)
}

func TestDo_ReadRetriesWithBackoff(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 3
	policy.FailureThreshold = 10
	caller := resilience.NewCaller("user-service", policy)
	var calls int32

	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", countingOp(&calls, 2), "degraded")

	assert.True(t, res.Available)
	assert.Equal(t, "remote", res.Value)
	assert.Equal(t, int32(3), calls)
}

func TestDo_ReadRetriesExhausted(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	policy.FailureThreshold = 10
	caller := resilience.NewCaller("user-service", policy)
	var calls int32

	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", countingOp(&calls, 100), "degraded")

	assert.False(t, res.Available)
	assert.Equal(t, "degraded", res.Value)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Equal(t, int32(3), calls)
}

func TestDo_MutationRetriesAreClampedToOne(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 5
	policy.MutationRetries = 5
	policy.FailureThreshold = 10
	caller := resilience.NewCaller("product-service", policy)
	var calls int32

	res := resilience.Do(context.Background(), caller, resilience.Mutation, "adjustStock", countingOp(&calls, 100), "degraded")

	assert.False(t, res.Available)
	assert.Equal(t, int32(2), calls)
}

func TestDo_MutationWithoutRetries(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 5
	policy.FailureThreshold = 10
	caller := resilience.NewCaller("product-service", policy)
	var calls int32

	res := resilience.Do(context.Background(), caller, resilience.Mutation, "adjustStock", countingOp(&calls, 100), "degraded")

	assert.False(t, res.Available)
	assert.Equal(t, int32(1), calls)
}

func TestDo_TimeoutAbandonsSlowCall(t *testing.T) {
	policy := testPolicy()
	policy.Timeout = 20 * time.Millisecond
	caller := resilience.NewCaller("product-service", policy)

	slow := func(ctx context.Context) (string, error) {
		// Ignores ctx on purpose.
		time.Sleep(300 * time.Millisecond)
		return "late", nil
	}

	start := time.Now()
	res := resilience.Do(context.Background(), caller, resilience.Read, "getProduct", slow, "degraded")

	assert.False(t, res.Available)
	assert.Equal(t, "degraded", res.Value)
	assert.ErrorIs(t, res.Err, resilience.ErrTimeout)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestDo_RejectionIsNotRetriedAndDoesNotTrip(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 3
	caller := resilience.NewCaller("product-service", policy)
	var calls int32
	reject := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", resilience.Reject(errors.New("insufficient stock"))
	}

	for i := 0; i < 5; i++ {
		res := resilience.Do(context.Background(), caller, resilience.Read, "adjustStock", reject, "degraded")
		assert.False(t, res.Available)
		assert.True(t, resilience.IsRejected(res.Err))
	}

	assert.Equal(t, int32(5), calls)
	assert.Equal(t, "closed", caller.State())
}

func TestDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	m := metrics.New()
	caller := resilience.NewCaller("user-service", testPolicy(), resilience.WithMetrics(m))
	var calls int32
	failing := countingOp(&calls, 1000)

	for i := 0; i < 3; i++ {
		res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", failing, "degraded")
		assert.False(t, res.Available)
	}
	require.Equal(t, int32(3), calls)
	assert.Equal(t, "open", caller.State())

	// Open circuit: no remote attempt at all.
	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", failing, "degraded")
	assert.False(t, res.Available)
	assert.True(t, resilience.IsShortCircuited(res.Err))
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCalls.WithLabelValues("user-service", "getUser", "short_circuited")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("user-service")))
}

func TestDo_HalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	caller := resilience.NewCaller("user-service", testPolicy())
	var calls int32
	failing := countingOp(&calls, 1000)
	for i := 0; i < 3; i++ {
		resilience.Do(context.Background(), caller, resilience.Read, "getUser", failing, "degraded")
	}
	require.Equal(t, "open", caller.State())

	time.Sleep(150 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	trial := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "recovered", nil
	}

	var wg sync.WaitGroup
	var trialResult resilience.Result[string]
	wg.Add(1)
	go func() {
		defer wg.Done()
		trialResult = resilience.Do(context.Background(), caller, resilience.Read, "getUser", trial, "degraded")
	}()
	<-started

	var extra int32
	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", countingOp(&extra, 0), "degraded")
	assert.False(t, res.Available)
	assert.True(t, resilience.IsShortCircuited(res.Err))
	assert.Equal(t, int32(0), extra)

	close(release)
	wg.Wait()
	assert.True(t, trialResult.Available)
	assert.Equal(t, "recovered", trialResult.Value)
	assert.Equal(t, "closed", caller.State())
}

func TestDo_FailedTrialReopens(t *testing.T) {
	caller := resilience.NewCaller("user-service", testPolicy())
	var calls int32
	failing := countingOp(&calls, 1000)
	for i := 0; i < 3; i++ {
		resilience.Do(context.Background(), caller, resilience.Read, "getUser", failing, "degraded")
	}
	time.Sleep(150 * time.Millisecond)

	res := resilience.Do(context.Background(), caller, resilience.Read, "getUser", failing, "degraded")
	assert.False(t, res.Available)
	assert.Equal(t, int32(4), calls)
	assert.Equal(t, "open", caller.State())
}

func TestDo_FailureRatioTrips(t *testing.T) {
	policy := testPolicy()
	policy.FailureThreshold = 0
	policy.FailureRatio = 0.5
	policy.MinRequests = 4
	policy.Window = time.Minute
	caller := resilience.NewCaller("product-service", policy)

	ok := func(ctx context.Context) (int, error) { return 1, nil }
	fail := func(ctx context.Context) (int, error) { return 0, errBoom }

	resilience.Do(context.Background(), caller, resilience.Read, "getProduct", ok, 0)
	resilience.Do(context.Background(), caller, resilience.Read, "getProduct", fail, 0)
	resilience.Do(context.Background(), caller, resilience.Read, "getProduct", ok, 0)
	assert.Equal(t, "closed", caller.State())

	resilience.Do(context.Background(), caller, resilience.Read, "getProduct", fail, 0)
	assert.Equal(t, "open", caller.State())
}

func TestDo_ConcurrentFailuresShareOneBreaker(t *testing.T) {
	policy := testPolicy()
	policy.FailureThreshold = 10
	policy.CoolDown = time.Minute
	caller := resilience.NewCaller("product-service", policy)
	var calls int32
	failing := countingOp(&calls, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := resilience.Do(context.Background(), caller, resilience.Read, "getProduct", failing, "degraded")
			assert.False(t, res.Available)
		}()
	}
	wg.Wait()

	assert.Equal(t, "open", caller.State())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(10))
}

func TestDo_CancelledContextIsNotRetried(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 3
	caller := resilience.NewCaller("user-service", policy)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	blocking := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return "", ctx.Err()
	}

	res := resilience.Do(ctx, caller, resilience.Read, "getUser", blocking, "degraded")
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestDo_CallerCancellationDoesNotTrip(t *testing.T) {
	caller := resilience.NewCaller("product-service", testPolicy())

	var calls int32
	abandoned := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", context.Canceled
	}
	for i := 0; i < 5; i++ {
		res := resilience.Do(context.Background(), caller, resilience.Read, "getProduct", abandoned, "degraded")
		assert.False(t, res.Available)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}

	// The client goes away mid-call; the transport reports its own error.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		res := resilience.Do(ctx, caller, resilience.Read, "getProduct", func(context.Context) (string, error) {
			cancel()
			return "", errBoom
		}, "degraded")
		assert.False(t, res.Available)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}

	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, "closed", caller.State())
}
