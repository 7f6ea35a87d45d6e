package rate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidPolicy = errors.New("invalid rate limit policy")

var DefaultPolicy = Policy{Window: time.Minute, MaxRequests: 10}

type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Validate accepts zero fields (they mean "default") and rejects negative ones.
func (p Policy) Validate() error {
	if p.Window < 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidPolicy, p.Window)
	}
	if p.MaxRequests < 0 {
		return fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxRequests <= 0 {
		p.MaxRequests = DefaultPolicy.MaxRequests
	}
	return p
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the Retry-After value in whole seconds, rounded up.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

type Backend interface {
	Allow(ctx context.Context, key string, p Policy) (Result, error)
}

var (
	_ Backend = (*Limiter)(nil)
	_ Backend = (*RedisLimiter)(nil)
)
