package tokenstore

import (
	"errors"
	"time"

	"cco/pkg/oauth"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds refresh attempts made by a single GetValidAccessToken
// call. MaxAttempts of 1 disables retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy retries transient refresh failures twice with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

// SingleAttempt performs exactly one refresh request and never retries.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// retryable reports whether a refresh failure may succeed on a later attempt.
// Rejected or expired refresh tokens are final.
func retryable(err error) bool {
	var ae *oauth.AuthError
	if errors.As(err, &ae) {
		return ae.Temporary()
	}
	return false
}
