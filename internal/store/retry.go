package store

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"simboard/internal/game"
)

const (
	attemptsCritical = 3
	attemptsDefault  = 2

	baseRetryDelay = 150 * time.Millisecond
	maxRetryDelay  = 1200 * time.Millisecond

	defaultCallTimeout = 5 * time.Second
)

// Breaker is a shared circuit breaker over connection-class store failures.
// It is constructed once per process and passed to the gateway explicitly so
// tests can build fresh instances instead of resetting globals.
type Breaker struct {
	mu          sync.Mutex
	log         *slog.Logger
	threshold   int
	cooldown    time.Duration
	consecutive int
	openedUntil time.Time
}

func NewBreaker(logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		log:       logger,
		threshold: 5,
		cooldown:  30 * time.Second,
	}
}

// Allow reports whether a non-critical call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedUntil.IsZero() {
		return true
	}
	if time.Now().Before(b.openedUntil) {
		return false
	}
	// Cool-down elapsed: half-open. One more failure re-trips immediately.
	b.log.Info("store breaker half-open")
	b.openedUntil = time.Time{}
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.openedUntil = time.Time{}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.consecutive >= b.threshold && b.openedUntil.IsZero() {
		b.openedUntil = time.Now().Add(b.cooldown)
		b.log.Warn("store breaker opened",
			"consecutive_failures", b.consecutive,
			"cooldown", b.cooldown.String())
	}
}

type callOpts struct {
	name     string
	critical bool
	timeout  time.Duration
}

// call runs fn under the gateway's retry policy: a per-attempt timeout,
// exponential backoff with jitter between attempts, and the shared breaker
// for non-critical operations. Critical operations (auth, session
// verification) bypass the breaker so a flaky data path cannot lock a host
// out of login.
func (g *Gateway) call(ctx context.Context, op callOpts, fn func(ctx context.Context) error) error {
	if op.timeout <= 0 {
		op.timeout = defaultCallTimeout
	}
	attempts := attemptsDefault
	if op.critical {
		attempts = attemptsCritical
	}

	if !op.critical && !g.breaker.Allow() {
		return game.ErrCircuitOpen
	}

	delay := baseRetryDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, op.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			if !op.critical {
				g.breaker.RecordSuccess()
			}
			return nil
		}

		lastErr = classify(err)
		connFailure := isConnectionClass(lastErr)
		if connFailure && !op.critical {
			g.breaker.RecordFailure()
		}
		g.log.Warn("store call failed",
			"op", op.name,
			"attempt", attempt,
			"err", lastErr)

		if !connFailure || attempt == attempts {
			return lastErr
		}
		if err := sleepWithContext(ctx, jitter(delay)); err != nil {
			return err
		}
		if delay < maxRetryDelay {
			delay *= 2
		}
	}
	return lastErr
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
