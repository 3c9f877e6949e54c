package tokenstore

import (
	"fmt"
)

// StorageErrorKind classifies credential storage failures.
type StorageErrorKind int

const (
	// NotFound means no credential has been stored yet.
	NotFound StorageErrorKind = iota
	// Corrupt means the credential file cannot be parsed or is incomplete.
	Corrupt
	// PermissionDenied means the file is readable by others, could not be
	// restricted, or the OS refused access.
	PermissionDenied
)

func (k StorageErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Corrupt:
		return "corrupt"
	case PermissionDenied:
		return "permission denied"
	default:
		return "unknown"
	}
}

// StorageError is returned by TokenStore for local persistence failures.
type StorageError struct {
	Kind StorageErrorKind
	Path string
	Err  error
}

// Sentinels for errors.Is matching on kind.
var (
	ErrNotFound         = &StorageError{Kind: NotFound}
	ErrCorrupt          = &StorageError{Kind: Corrupt}
	ErrPermissionDenied = &StorageError{Kind: PermissionDenied}
)

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("credential storage %s", e.Kind)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches any *StorageError of the same kind.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// RefreshError is returned by GetValidAccessToken when the credential is near
// expiry and could not be refreshed. The user has to log in again.
type RefreshError struct {
	Attempts int
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
