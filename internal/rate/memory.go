// Package rate implements fixed-window request limiting.
//
// Limiter keeps its counters in process memory. Every process enforces its own
// budget, so a deployment with N replicas admits up to N times the policy. Use
// RedisLimiter when the budget has to be shared. Fixed windows also admit up to
// 2x MaxRequests across a window boundary.
package rate

import (
	"context"
	"sync"
	"time"
)

const DefaultSweepInterval = time.Minute

type entry struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepEvery = d
		}
	}
}

func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		entries:    map[string]*entry{},
		now:        time.Now,
		sweepEvery: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for key against p. The lookup, the expiry test and
// the increment happen under one lock, so two callers can never both take the
// last slot.
func (l *Limiter) Check(key string, p Policy) Result {
	p = p.withDefaults()
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || e.resetAt.Before(now) {
		e = &entry{count: 1, resetAt: now.Add(p.Window)}
		l.entries[key] = e
		return Result{Allowed: true, Limit: p.MaxRequests, Remaining: p.MaxRequests - 1, ResetAt: e.resetAt}
	}
	if e.count >= p.MaxRequests {
		return Result{Allowed: false, Limit: p.MaxRequests, Remaining: 0, ResetAt: e.resetAt}
	}
	e.count++
	return Result{Allowed: true, Limit: p.MaxRequests, Remaining: p.MaxRequests - e.count, ResetAt: e.resetAt}
}

func (l *Limiter) Allow(_ context.Context, key string, p Policy) (Result, error) {
	return l.Check(key, p), nil
}

// Sweep drops entries whose window has already closed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if e.resetAt.Before(now) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start launches the janitor goroutine. Calling Start on a running limiter is a no-op.
func (l *Limiter) Start() {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done
	every := l.sweepEvery
	l.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit.
func (l *Limiter) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
