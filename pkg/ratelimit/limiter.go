package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed right now
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx ends
	Wait(ctx context.Context) error
}

// TokenBucket is a token bucket limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows perSecond requests per second with the given burst
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// New returns a TokenBucket when perSecond is positive, Unlimited otherwise
func New(perSecond float64, burst int) Limiter {
	if perSecond <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(perSecond, burst)
}

// Jitter produces randomized pauses of Base plus a uniform draw from
// [0, Spread). Workers pacing with independent draws do not wake in lockstep.
type Jitter struct {
	Base   time.Duration
	Spread time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitter creates a Jitter with its own random source
func NewJitter(base, spread time.Duration) *Jitter {
	return &Jitter{
		Base:   base,
		Spread: spread,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next pause length
func (j *Jitter) Next() time.Duration {
	d := j.Base
	if j.Spread > 0 {
		j.mu.Lock()
		if j.rng == nil {
			j.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d += time.Duration(j.rng.Int63n(int64(j.Spread)))
		j.mu.Unlock()
	}
	return d
}

// Sleep pauses for Next() or until ctx ends
func (j *Jitter) Sleep(ctx context.Context) error {
	d := j.Next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
