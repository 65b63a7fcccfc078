package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds a provider's outbound traffic three ways: a hard cap on
// in-flight calls, a minimum spacing between call starts, and a shared
// cooldown window that pauses every worker when the provider answers 429.
type Limiter struct {
	sem    chan struct{}
	pacer  *rate.Limiter
	policy Policy

	mu         sync.Mutex
	cooldownTo time.Time
}

// NewLimiter creates a Limiter allowing at most maxInFlight concurrent calls
// with at least minInterval between call starts. A zero minInterval disables
// pacing.
func NewLimiter(maxInFlight int, minInterval time.Duration, policy Policy) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	pacer := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{
		sem:    make(chan struct{}, maxInFlight),
		pacer:  pacer,
		policy: policy,
	}
}

// Cooldown pauses all callers until now+d. Later deadlines win; a shorter
// cooldown never truncates one already in force.
func (l *Limiter) Cooldown(d time.Duration) {
	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.cooldownTo) {
		l.cooldownTo = until
	}
	l.mu.Unlock()
}

func (l *Limiter) waitCooldown(ctx context.Context) error {
	for {
		l.mu.Lock()
		remaining := time.Until(l.cooldownTo)
		l.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// acquire blocks until a slot is free, the pacing interval has elapsed, and
// any active cooldown has passed.
func (l *Limiter) acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-l.sem }

	if err := l.waitCooldown(ctx); err != nil {
		release()
		return nil, err
	}
	if err := l.pacer.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// Run executes fn under the limiter with the limiter's retry policy. A 429
// from fn triggers a shared cooldown so sibling workers stop hammering the
// provider, then retries as a transient failure.
func Run[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, l.policy, func(ctx context.Context) (T, error) {
		var zero T
		release, err := l.acquire(ctx)
		if err != nil {
			return zero, err
		}
		defer release()

		val, err := fn(ctx)
		if err != nil {
			if rle, ok := IsRateLimited(err); ok {
				l.Cooldown(rle.RetryAfter)
			}
			return zero, err
		}
		return val, nil
	})
}
