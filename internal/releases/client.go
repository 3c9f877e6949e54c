// Package releases talks to the authenticated release API: release metadata
// lookups and presigned download URL issuance.
package releases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cco/pkg/logging"
	"cco/pkg/oauth"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultTimeout bounds each release API request.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// TokenSource supplies the bearer token for each request.
// *tokenstore.TokenStore satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a release API client.
type Client struct {
	baseURL    *url.URL
	tokens     TokenSource
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithClock overrides the time source used to compute URL expiry.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

// NewClient creates a release API client for baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid release API URL %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = DefaultTimeout

	c := &Client{
		baseURL:    u,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logging.Logger("Releases"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchLatest returns the newest release on channel.
func (c *Client) FetchLatest(ctx context.Context, channel string) (*Metadata, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	q := url.Values{"channel": {channel}}

	meta, err := c.fetchMetadata(ctx, c.endpoint(q, "releases", "latest"))
	if err != nil {
		return nil, err
	}
	if meta.Channel != "" && meta.Channel != channel {
		return nil, &APIError{Kind: InvalidResponse, Message: fmt.Sprintf("asked for channel %q, got %q", channel, meta.Channel)}
	}
	return meta, nil
}

// FetchRelease returns the metadata of a specific version.
func (c *Client) FetchRelease(ctx context.Context, version string) (*Metadata, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errors.New("version is required")
	}
	version = strings.TrimPrefix(version, "v")
	meta, err := c.fetchMetadata(ctx, c.endpoint(nil, "releases", version))
	if err != nil {
		return nil, err
	}
	if strings.TrimPrefix(meta.Version, "v") != version {
		return nil, &APIError{Kind: InvalidResponse, Message: fmt.Sprintf("asked for version %s, got %s", version, meta.Version)}
	}
	return meta, nil
}

// FetchDownloadURL asks the API for a presigned URL for one artifact.
func (c *Client) FetchDownloadURL(ctx context.Context, version, platform string) (*DownloadLocation, error) {
	body, err := c.get(ctx, c.endpoint(nil, "download", strings.TrimPrefix(version, "v"), platform))
	if err != nil {
		return nil, err
	}
	if err := validateBody(downloadSchema, body); err != nil {
		return nil, &APIError{Kind: InvalidResponse, Err: err}
	}

	var dr downloadResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &APIError{Kind: InvalidResponse, Err: err}
	}
	return &DownloadLocation{
		URL:       dr.DownloadURL,
		ExpiresAt: c.now().Add(time.Duration(dr.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) fetchMetadata(ctx context.Context, endpoint string) (*Metadata, error) {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if err := validateBody(releaseSchema, body); err != nil {
		return nil, &APIError{Kind: InvalidResponse, Err: err}
	}

	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, &APIError{Kind: InvalidResponse, Err: err}
	}
	for name, e := range meta.Platforms {
		e.Checksum = strings.ToLower(e.Checksum)
		meta.Platforms[name] = e
	}
	return &meta, nil
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = c.baseURL.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// get performs one authenticated GET and returns the capped body of a 200.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read release API response: %w", err)
	}

	c.logger.Debug("Release API response", "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, body)
	}
	if len(body) > maxBodyBytes {
		return nil, &APIError{Kind: InvalidResponse, Message: fmt.Sprintf("response exceeds %d bytes", maxBodyBytes)}
	}
	return body, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) statusError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var eb errorBody
	if json.Unmarshal(bytes.TrimSpace(body), &eb) == nil {
		apiErr.Message = eb.Message
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = Unauthorized
		apiErr.Challenge = oauth.ParseWWWAuthenticateFromResponse(resp)
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = Forbidden
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = NotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = RateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
	default:
		apiErr.Kind = ServerError
	}
	return apiErr
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
