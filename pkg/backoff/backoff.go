// Package backoff provides deterministic exponential backoff for the
// dispatcher's reconnection policy.
package backoff

import (
	"context"
	"errors"
	"time"
)

// Policy describes a capped exponential backoff schedule.
type Policy struct {
	BaseDelay   time.Duration // Delay before the first retry attempt
	MaxDelay    time.Duration // Upper bound for any single delay
	Multiplier  float64       // Backoff multiplier (typically 2.0)
	MaxAttempts int           // Attempts allowed before giving up
}

// DefaultPolicy returns sensible defaults for transport reconnection
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 5,
	}
}

// Validate checks the policy for usable values
func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return errors.New("backoff: BaseDelay must be positive")
	}
	if p.MaxDelay < p.BaseDelay {
		return errors.New("backoff: MaxDelay must be >= BaseDelay")
	}
	if p.Multiplier < 1 {
		return errors.New("backoff: Multiplier must be >= 1")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("backoff: MaxAttempts must be positive")
	}
	return nil
}

// Delay returns the wait before attempt n (1-based):
// BaseDelay * Multiplier^(n-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(delay)
}

// Exhausted reports whether attempt exceeds the configured maximum
func (p Policy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}

// Wait sleeps for d or until ctx is cancelled, whichever comes first.
// Returns the context error on cancellation so callers can abort cleanly.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
