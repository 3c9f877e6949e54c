// Package download streams a release payload to disk under a hard size
// ceiling while computing its SHA-256 digest.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"cco/internal/presign"
	"cco/pkg/logging"

	"github.com/hashicorp/go-cleanhttp"
)

const chunkSize = 32 * 1024

// URLValidator approves a URL before it is fetched and every redirect after.
// *presign.Validator satisfies it.
type URLValidator interface {
	Validate(rawURL string) error
	CheckRedirect(req *http.Request, via []*http.Request) error
}

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server did not declare a length.
type ProgressFunc func(written, total int64)

// Result describes a completed download. Digest is lowercase hex SHA-256.
type Result struct {
	Path         string
	BytesWritten int64
	Digest       string
}

// Downloader fetches payloads from validated URLs.
type Downloader struct {
	validator URLValidator
	client    *http.Client
	progress  ProgressFunc
	userAgent string
	logger    *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets the HTTP client. Its CheckRedirect is replaced with the
// validator's.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		cp := *c
		d.client = &cp
	}
}

// WithProgress registers a progress callback invoked after every chunk.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		d.userAgent = ua
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// New creates a Downloader. The default client has no overall timeout; the
// caller bounds a transfer with the context deadline.
func New(validator URLValidator, opts ...Option) (*Downloader, error) {
	if validator == nil {
		return nil, errors.New("URL validator is required")
	}
	d := &Downloader{
		validator: validator,
		client:    cleanhttp.DefaultPooledClient(),
		logger:    logging.Logger("Download"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.client.CheckRedirect = validator.CheckRedirect
	return d, nil
}

// Stream downloads rawURL into destPath, which must not exist yet, and
// returns the byte count and digest.
//
// At most maxBytes ever reach the disk. On any failure the partial file is
// removed and no digest is reported.
func (d *Downloader) Stream(ctx context.Context, rawURL, destPath string, maxBytes int64) (res *Result, err error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maximum download size must be positive, got %d", maxBytes)
	}
	if err := d.validator.Validate(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		var se *presign.SecurityError
		if errors.As(err, &se) {
			return nil, se
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &DownloadError{Kind: NetworkInterrupted, Err: ctxErr}
		}
		return nil, &DownloadError{Kind: NetworkInterrupted, Err: redactURLError(err, rawURL)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{Kind: HTTPStatus, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total > maxBytes {
		return nil, &DownloadError{Kind: SizeExceeded, Limit: maxBytes, Detail: fmt.Sprintf("server declared %d bytes", total)}
	}

	// #nosec G304 -- destPath is created by the caller inside its own temp dir
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				d.logger.Warn("Failed to remove partial download", "path", destPath, "error", rmErr)
			}
		}
	}()

	h := sha256.New()
	sink := &limitedSink{
		w:        f,
		h:        h,
		max:      maxBytes,
		total:    total,
		progress: d.progress,
	}
	src := &trackingReader{r: resp.Body}

	_, err = io.CopyBuffer(sink, src, make([]byte, chunkSize))
	switch {
	case errors.Is(err, errLimit):
		return nil, &DownloadError{Kind: SizeExceeded, Limit: maxBytes}
	case src.err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &DownloadError{Kind: NetworkInterrupted, Err: ctxErr}
		}
		return nil, &DownloadError{Kind: NetworkInterrupted, Err: src.err}
	case err != nil:
		return nil, fmt.Errorf("failed to write %s: %w", destPath, err)
	}

	if total >= 0 && sink.written != total {
		return nil, &DownloadError{
			Kind:   NetworkInterrupted,
			Detail: fmt.Sprintf("received %d of %d bytes", sink.written, total),
		}
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", destPath, err)
	}
	committed = true

	res = &Result{
		Path:         destPath,
		BytesWritten: sink.written,
		Digest:       hex.EncodeToString(h.Sum(nil)),
	}
	d.logger.Debug("Download complete", "bytes", res.BytesWritten, "sha256", res.Digest)
	return res, nil
}

var errLimit = errors.New("size limit reached")

// limitedSink hashes and writes chunks until max bytes. A chunk that would
// cross the limit is rejected whole, so the file never holds more than max.
type limitedSink struct {
	w        io.Writer
	h        hash.Hash
	max      int64
	total    int64
	written  int64
	progress ProgressFunc
}

func (s *limitedSink) Write(p []byte) (int, error) {
	if s.written+int64(len(p)) > s.max {
		return 0, errLimit
	}
	n, err := s.w.Write(p)
	s.h.Write(p[:n])
	s.written += int64(n)
	if s.progress != nil {
		s.progress(s.written, s.total)
	}
	return n, err
}

// trackingReader remembers read errors so they can be told apart from
// write errors after io.Copy.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// redactURLError keeps the presigned query string out of error messages.
func redactURLError(err error, rawURL string) error {
	msg := err.Error()
	if strings.Contains(msg, rawURL) {
		return errors.New(strings.ReplaceAll(msg, rawURL, presign.Redact(rawURL)))
	}
	return err
}

// HashFile returns the SHA-256 digest and size of the file at path.
func HashFile(path string) (digest string, size int64, err error) {
	// #nosec G304 -- path is a download produced by Stream
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err = io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
