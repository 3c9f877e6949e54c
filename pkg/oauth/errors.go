package oauth

import (
	"fmt"
)

// AuthErrorKind classifies failures of the device flow and token endpoint.
type AuthErrorKind int

const (
	// AuthPending means the user has not approved the device yet.
	AuthPending AuthErrorKind = iota
	// AuthSlowDown means the client polls too fast and must back off by 5s.
	AuthSlowDown
	// AuthDenied means the user rejected the authorization request.
	AuthDenied
	// AuthExpired means the device code or refresh token is no longer valid.
	AuthExpired
	// AuthNetworkFailure covers transport errors and 5xx responses.
	AuthNetworkFailure
	// AuthProtocol covers malformed or unexpected identity provider responses.
	AuthProtocol
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthPending:
		return "authorization_pending"
	case AuthSlowDown:
		return "slow_down"
	case AuthDenied:
		return "access_denied"
	case AuthExpired:
		return "expired"
	case AuthNetworkFailure:
		return "network_failure"
	case AuthProtocol:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// AuthError is returned by identity provider operations.
type AuthError struct {
	Kind AuthErrorKind
	// Code is the RFC 6749 error code sent by the server, if any.
	Code        string
	Description string
	Err         error
}

// Sentinels for errors.Is matching on kind.
var (
	ErrAuthPending    = &AuthError{Kind: AuthPending}
	ErrSlowDown       = &AuthError{Kind: AuthSlowDown}
	ErrAccessDenied   = &AuthError{Kind: AuthDenied}
	ErrAuthExpired    = &AuthError{Kind: AuthExpired}
	ErrNetworkFailure = &AuthError{Kind: AuthNetworkFailure}
	ErrProtocol       = &AuthError{Kind: AuthProtocol}
)

func (e *AuthError) Error() string {
	msg := "authentication failed: " + e.Kind.String()
	if e.Code != "" && e.Code != e.Kind.String() {
		msg += fmt.Sprintf(" (%s)", e.Code)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Temporary reports whether retrying the same request may succeed.
func (e *AuthError) Temporary() bool {
	return e.Kind == AuthNetworkFailure
}

// errorFromCode maps an RFC 6749 / RFC 8628 error code to an AuthError.
func errorFromCode(code, description string) *AuthError {
	kind := AuthProtocol
	switch code {
	case "authorization_pending":
		kind = AuthPending
	case "slow_down":
		kind = AuthSlowDown
	case "access_denied":
		kind = AuthDenied
	case "expired_token", "invalid_grant":
		kind = AuthExpired
	}
	return &AuthError{Kind: kind, Code: code, Description: description}
}
