package releases

import (
	"fmt"
	"time"

	"cco/pkg/oauth"
)

// APIErrorKind classifies release API failures.
type APIErrorKind int

const (
	Unauthorized APIErrorKind = iota
	Forbidden
	NotFound
	RateLimited
	ServerError
	InvalidResponse
)

func (k APIErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	case RateLimited:
		return "rate limited"
	case ServerError:
		return "server error"
	case InvalidResponse:
		return "invalid response"
	default:
		return "api error"
	}
}

// APIError is returned for any failed release API request.
type APIError struct {
	Kind       APIErrorKind
	StatusCode int
	// RetryAfter is set for RateLimited when the server sent Retry-After.
	RetryAfter time.Duration
	// Challenge is the parsed WWW-Authenticate header of a 401.
	Challenge *oauth.AuthChallenge
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	msg := "release API: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if reason := e.Challenge.Describe(); reason != "" {
		msg += ": " + reason
	} else if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches any *APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized    = &APIError{Kind: Unauthorized}
	ErrForbidden       = &APIError{Kind: Forbidden}
	ErrNotFound        = &APIError{Kind: NotFound}
	ErrRateLimited     = &APIError{Kind: RateLimited}
	ErrServerError     = &APIError{Kind: ServerError}
	ErrInvalidResponse = &APIError{Kind: InvalidResponse}
)
