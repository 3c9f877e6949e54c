package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"cco/internal/presign"
)

// ConnectionErrorType categorizes the type of connection error.
type ConnectionErrorType int

const (
	// ConnectionErrorUnknown indicates an unclassified connection error.
	ConnectionErrorUnknown ConnectionErrorType = iota
	// ConnectionErrorTLS indicates a TLS/certificate verification error.
	ConnectionErrorTLS
	// ConnectionErrorNetwork indicates a refused, reset or unreachable connection.
	ConnectionErrorNetwork
	// ConnectionErrorTimeout indicates a connection timeout.
	ConnectionErrorTimeout
	// ConnectionErrorDNS indicates a DNS resolution failure.
	ConnectionErrorDNS
)

// String returns a human-readable name for the connection error type.
func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError is a failure to reach the identity provider, the release
// API or a download host.
type ConnectionError struct {
	// Endpoint is the URL that could not be reached, with any query removed.
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

var (
	tlsKeywords     = []string{"x509:", "certificate", "tls:", "TLS handshake"}
	networkKeywords = []string{"connection refused", "connection reset", "network is unreachable", "no route to host", "dial tcp", "connect:"}
	timeoutKeywords = []string{"timeout", "deadline exceeded"}
)

// ClassifyConnectionError wraps err with its connection error type. It
// returns nil for a nil error.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}
	if endpoint != "" {
		// Presigned download URLs carry credentials in the query.
		endpoint = presign.Redact(endpoint)
	}
	return &ConnectionError{Endpoint: endpoint, Type: connectionErrorType(err), Reason: err}
}

func connectionErrorType(err error) ConnectionErrorType {
	var dnsErr *net.DNSError
	switch {
	case isTLSError(err):
		return ConnectionErrorTLS
	case errors.As(err, &dnsErr):
		return ConnectionErrorDNS
	case isTimeoutError(err):
		return ConnectionErrorTimeout
	case containsAny(err.Error(), networkKeywords):
		return ConnectionErrorNetwork
	default:
		return ConnectionErrorUnknown
	}
}

func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	var (
		certErr        *x509.CertificateInvalidError
		hostErr        *x509.HostnameError
		unknownAuthErr *x509.UnknownAuthorityError
		systemRootsErr *x509.SystemRootsError
	)
	if errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &systemRootsErr) {
		return true
	}
	return containsAny(err.Error(), tlsKeywords)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return containsAny(err.Error(), timeoutKeywords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Reason)
	}
	return fmt.Sprintf("%s reaching %s: %v", e.Type, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Reason
}
