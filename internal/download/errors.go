package download

import "fmt"

// DownloadErrorKind classifies download and payload verification failures.
type DownloadErrorKind int

const (
	// SizeExceeded means the payload is larger than the allowed maximum.
	SizeExceeded DownloadErrorKind = iota
	// NetworkInterrupted means the transfer failed or ended early.
	NetworkInterrupted
	// ChecksumMismatch means the payload does not match the published digest
	// or size.
	ChecksumMismatch
	// HTTPStatus means the server answered with a non-2xx status.
	HTTPStatus
)

func (k DownloadErrorKind) String() string {
	switch k {
	case SizeExceeded:
		return "download too large"
	case NetworkInterrupted:
		return "download interrupted"
	case ChecksumMismatch:
		return "checksum mismatch"
	case HTTPStatus:
		return "download failed"
	default:
		return "download error"
	}
}

// DownloadError describes a failed download.
type DownloadError struct {
	Kind DownloadErrorKind
	// StatusCode is set for HTTPStatus.
	StatusCode int
	// Limit is set for SizeExceeded.
	Limit  int64
	Detail string
	Err    error
}

func (e *DownloadError) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Kind == HTTPStatus && e.StatusCode != 0:
		msg = fmt.Sprintf("%s: server returned status %d", msg, e.StatusCode)
	case e.Kind == SizeExceeded && e.Limit > 0:
		msg = fmt.Sprintf("%s: limit is %d bytes", msg, e.Limit)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is matches any *DownloadError of the same kind.
func (e *DownloadError) Is(target error) bool {
	t, ok := target.(*DownloadError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSizeExceeded       = &DownloadError{Kind: SizeExceeded}
	ErrNetworkInterrupted = &DownloadError{Kind: NetworkInterrupted}
	ErrChecksumMismatch   = &DownloadError{Kind: ChecksumMismatch}
	ErrHTTPStatus         = &DownloadError{Kind: HTTPStatus}
)
