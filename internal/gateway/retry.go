package gateway

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls retry behavior for transient request failures.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// Jitter is the randomization fraction (0..1) applied to each delay.
	Jitter float64
	// RetryOn lists the HTTP status codes that trigger a retry.
	RetryOn []int
}

// DefaultRetryPolicy retries timeouts, rate limits and server errors.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
		RetryOn:    []int{408, 429, 500, 502, 503, 504},
	}
}

// ShouldRetry reports whether another attempt is allowed for statusCode.
func (p *RetryPolicy) ShouldRetry(attempt, statusCode int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	for _, code := range p.RetryOn {
		if code == statusCode {
			return true
		}
	}
	return false
}

// Delay computes the jittered backoff delay for an attempt.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

// Wait sleeps for the attempt's delay or returns early on cancellation.
func (p *RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
