package resilience

import "time"

// Policy configures timeouts, retries and the circuit breaker for one remote dependency.
type Policy struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for read operations.
	MaxRetries uint64
	// MutationRetries is the number of extra attempts for mutations. Values above 1 are clamped.
	MutationRetries uint64
	// InitialBackoff and MaxBackoff shape the exponential backoff between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
	// FailureRatio trips the breaker once failures/requests within Window reach it,
	// provided at least MinRequests were seen. Zero disables the ratio rule.
	FailureRatio float64
	MinRequests  uint32
	// Window is the cyclic period after which closed-state counts are cleared.
	Window time.Duration
	// CoolDown is how long the breaker stays open before admitting a trial call.
	CoolDown time.Duration
}

// DefaultPolicy mirrors the settings the catalog and identity services were tuned for.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:          3 * time.Second,
		MaxRetries:       3,
		MutationRetries:  0,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		Window:           60 * time.Second,
		CoolDown:         30 * time.Second,
	}
}

func (p Policy) retriesFor(kind Kind) uint64 {
	if kind == Mutation {
		if p.MutationRetries > 1 {
			return 1
		}
		return p.MutationRetries
	}
	return p.MaxRetries
}
