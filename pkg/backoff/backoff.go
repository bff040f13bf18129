// Package backoff computes the delay before a connection attempt.
package backoff

import (
	"math"
	"time"
)

// Policy implements exponential backoff with a floor and a ceiling.
//
// Any jitter is expected to be folded into MinDelay when the policy is built,
// so Delay is deterministic for a given policy.
type Policy struct {
	// MinDelay is the delay before the first retry.
	MinDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// GrowFactor is the base of the exponent.
	GrowFactor float64
}

// New creates a policy.
func New(minDelay, maxDelay time.Duration, growFactor float64) Policy {
	return Policy{
		MinDelay:   minDelay,
		MaxDelay:   maxDelay,
		GrowFactor: growFactor,
	}
}

// Delay returns the wait before the attempt numbered retryCount.
//
// Attempts numbered 0 or below (the initial connection and the first attempt
// after a reset) are not delayed.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}

	delay := float64(p.MinDelay) * math.Pow(p.GrowFactor, float64(retryCount-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}
