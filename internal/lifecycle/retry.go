package lifecycle

import (
	"fmt"
	"time"

	"github.com/nerrad567/signalhub/internal/infrastructure/config"
)

// Default retry policy values.
const (
	DefaultInitialDelay  = 5 * time.Second
	DefaultMaxDelay      = 300 * time.Second
	DefaultBackoffFactor = 2.0
)

// RetryPolicy controls the exponential backoff between failed attempts.
type RetryPolicy struct {
	// InitialDelay is the first wait after a failure and the value the
	// delay resets to after a successful snapshot.
	InitialDelay time.Duration

	// MaxDelay caps the wait.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each consecutive failure.
	BackoffFactor float64
}

// DefaultRetryPolicy returns 5s initial, 300s ceiling, factor 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// PolicyFromConfig converts merged retry settings into a RetryPolicy.
func PolicyFromConfig(r config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		InitialDelay:  r.InitialRetryDelay,
		MaxDelay:      r.MaxRetryDelay,
		BackoffFactor: r.RetryBackoffFactor,
	}
}

// Validate checks the policy.
func (p RetryPolicy) Validate() error {
	switch {
	case p.InitialDelay <= 0:
		return fmt.Errorf("%w: initial delay must be positive, got %s", ErrInvalidRetryPolicy, p.InitialDelay)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("%w: max delay %s below initial delay %s", ErrInvalidRetryPolicy, p.MaxDelay, p.InitialDelay)
	case p.BackoffFactor < 1:
		return fmt.Errorf("%w: backoff factor must be >= 1, got %g", ErrInvalidRetryPolicy, p.BackoffFactor)
	}
	return nil
}

// Next returns the delay that follows current, capped at MaxDelay.
func (p RetryPolicy) Next(current time.Duration) time.Duration {
	next := float64(current) * p.BackoffFactor
	if next >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(next)
}
