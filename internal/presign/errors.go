package presign

import (
	"fmt"
	"net/url"
)

// SecurityErrorKind classifies a rejected download URL.
type SecurityErrorKind int

const (
	// InvalidURL covers malformed URLs and violations of the scheme, port,
	// expiry and path rules.
	InvalidURL SecurityErrorKind = iota
	// UntrustedHost means the host is not on the allow-list.
	UntrustedHost
)

func (k SecurityErrorKind) String() string {
	switch k {
	case InvalidURL:
		return "invalid download URL"
	case UntrustedHost:
		return "untrusted download host"
	default:
		return "security error"
	}
}

// SecurityError is returned for any URL the validator refuses.
// URL never contains the query string, which carries the signature.
type SecurityError struct {
	Kind   SecurityErrorKind
	URL    string
	Reason string
}

func (e *SecurityError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.URL)
}

// Is matches any *SecurityError of the same kind.
func (e *SecurityError) Is(target error) bool {
	t, ok := target.(*SecurityError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrInvalidURL matches every InvalidURL SecurityError.
	ErrInvalidURL = &SecurityError{Kind: InvalidURL}
	// ErrUntrustedHost matches every UntrustedHost SecurityError.
	ErrUntrustedHost = &SecurityError{Kind: UntrustedHost}
)

// Redact strips credentials and the query string from rawURL so it can be
// logged or shown to the user.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparsable URL>"
	}
	hadQuery := u.RawQuery != ""
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	s := u.String()
	if hadQuery {
		s += "?<redacted>"
	}
	return s
}
