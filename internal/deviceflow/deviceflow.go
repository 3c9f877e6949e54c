// Package deviceflow drives the OAuth 2.0 device authorization grant
// (RFC 8628) from code issuance to token.
package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cco/pkg/logging"
	"cco/pkg/oauth"

	"golang.org/x/oauth2"
)

const (
	// DefaultInterval is used when the server does not send one.
	DefaultInterval = 5 * time.Second
	// MinInterval is the shortest wait allowed between polls.
	MinInterval = time.Second
	// SlowDownIncrement is added to the interval on every slow_down response.
	SlowDownIncrement = 5 * time.Second
	// DefaultLifetime is assumed when the server omits expires_in.
	DefaultLifetime = 10 * time.Minute
)

// Provider issues device codes and answers token polls. *oauth.Client
// satisfies it.
type Provider interface {
	RequestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error)
	PollDeviceToken(ctx context.Context, deviceCode string) (*oauth.Credential, error)
}

// Clock abstracts time for the polling loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Authorization is an issued device code. It lives only for one login attempt.
type Authorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Interval                time.Duration
	ExpiresAt               time.Time
}

// Authenticator runs the device flow against a Provider.
type Authenticator struct {
	provider Provider
	clock    Clock
	logger   *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(a *Authenticator) {
		a.clock = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New creates an Authenticator.
func New(provider Provider, opts ...Option) *Authenticator {
	a := &Authenticator{
		provider: provider,
		clock:    realClock{},
		logger:   logging.Logger("DeviceFlow"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initiate requests a new device code.
func (a *Authenticator) Initiate(ctx context.Context) (*Authorization, error) {
	resp, err := a.provider.RequestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(resp.Interval) * time.Second
	switch {
	case resp.Interval <= 0:
		interval = DefaultInterval
	case interval < MinInterval:
		interval = MinInterval
	}

	expiresAt := resp.Expiry
	if expiresAt.IsZero() {
		expiresAt = a.clock.Now().Add(DefaultLifetime)
	}

	auth := &Authorization{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                interval,
		ExpiresAt:               expiresAt,
	}
	a.logger.Debug("Device code issued", "interval", interval, "expires_at", expiresAt)
	return auth, nil
}

// Poll waits for the user to approve auth and returns the issued credential.
//
// Each iteration waits for the current interval, then makes exactly one token
// request. authorization_pending keeps waiting; slow_down grows the interval
// by SlowDownIncrement. Every other failure is terminal. The loop never runs
// past auth.ExpiresAt and returns promptly when ctx is cancelled.
func (a *Authenticator) Poll(ctx context.Context, auth *Authorization) (*oauth.Credential, error) {
	if auth == nil || auth.DeviceCode == "" {
		return nil, errors.New("device authorization is required")
	}

	interval := auth.Interval
	if interval < MinInterval {
		interval = MinInterval
	}

	for attempt := 1; ; attempt++ {
		remaining := auth.ExpiresAt.Sub(a.clock.Now())
		if remaining <= 0 {
			return nil, expiredError()
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.clock.After(wait):
		}

		if !a.clock.Now().Before(auth.ExpiresAt) {
			return nil, expiredError()
		}

		cred, err := a.provider.PollDeviceToken(ctx, auth.DeviceCode)
		switch {
		case err == nil:
			a.logger.Debug("Device authorization approved", "polls", attempt)
			return cred, nil
		case errors.Is(err, oauth.ErrAuthPending):
			continue
		case errors.Is(err, oauth.ErrSlowDown):
			interval += SlowDownIncrement
			a.logger.Debug("Server asked to slow down", "interval", interval)
			continue
		default:
			return nil, err
		}
	}
}

// Login runs the whole flow: it issues a code, hands it to prompt for
// display, and polls until the user approves or the code expires.
func (a *Authenticator) Login(ctx context.Context, prompt func(*Authorization)) (*oauth.Credential, error) {
	auth, err := a.Initiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start device authorization: %w", err)
	}
	if prompt != nil {
		prompt(auth)
	}
	return a.Poll(ctx, auth)
}

func expiredError() error {
	return &oauth.AuthError{Kind: oauth.AuthExpired, Code: "expired_token", Description: "the device code expired before it was approved"}
}
