package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Client handles the identity provider protocol operations the CLI needs:
// device authorization, device token polling, refresh and revocation.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source used to compute absolute expiries.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new OAuth client for the given configuration.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = DefaultHTTPTimeout

	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.cfg.ClientID,
		Scopes:   c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.cfg.Endpoints.DeviceAuthURL,
			TokenURL:      c.cfg.Endpoints.TokenURL,
			// Public client: never probe header-based auth, which would cost
			// a second request per refresh.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// RequestDeviceCode starts the device authorization flow (RFC 8628 section 3.1).
func (c *Client) RequestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := c.oauth2Config().DeviceAuth(c.withHTTPClient(ctx))
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationURI == "" {
		return nil, &AuthError{Kind: AuthProtocol, Description: "device authorization response is missing required fields"}
	}

	c.logger.Debug("Device authorization issued",
		"verification_uri", resp.VerificationURI,
		"interval", resp.Interval,
		"expiry", resp.Expiry)

	return resp, nil
}

// PollDeviceToken makes exactly one token request for a pending device code.
// Pending approval surfaces as ErrAuthPending and rate limiting as ErrSlowDown;
// the caller owns the wait between polls.
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (*Credential, error) {
	data := url.Values{
		"grant_type":  {DeviceCodeGrantType},
		"device_code": {deviceCode},
		"client_id":   {c.cfg.ClientID},
	}
	return c.doTokenRequest(ctx, data)
}

// Refresh exchanges a refresh token for a new credential. It issues exactly
// one request. A response without refresh_token keeps the old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	if refreshToken == "" {
		return nil, &AuthError{Kind: AuthExpired, Description: "no refresh token available"}
	}

	src := c.oauth2Config().TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyError(err)
	}
	if tok.Expiry.IsZero() {
		return nil, &AuthError{Kind: AuthProtocol, Description: "token response is missing expires_in"}
	}

	c.logger.Debug("Refreshed access token", "expires_at", tok.Expiry)
	return CredentialFromOAuth2(tok), nil
}

// Revoke asks the server to invalidate a token (RFC 7009).
func (c *Client) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	endpoint := c.cfg.Endpoints.RevocationURL
	if endpoint == "" {
		return ErrRevocationUnsupported
	}

	data := url.Values{
		"token":     {token},
		"client_id": {c.cfg.ClientID},
	}
	if tokenTypeHint != "" {
		data.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Kind: AuthNetworkFailure, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation request failed with status %d", resp.StatusCode)
	}
	return nil
}

// ErrRevocationUnsupported is returned by Revoke when no endpoint is known.
var ErrRevocationUnsupported = errors.New("identity provider does not advertise a revocation endpoint")

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// doTokenRequest performs a single token endpoint request.
func (c *Client) doTokenRequest(ctx context.Context, data url.Values) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Kind: AuthNetworkFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &AuthError{Kind: AuthNetworkFailure, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &AuthError{Kind: AuthNetworkFailure, Description: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)}
		}
		return nil, &AuthError{Kind: AuthProtocol, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	if tr.Error != "" {
		c.logger.Debug("Token request returned error",
			"status", resp.StatusCode,
			"error", tr.Error)
		return nil, errorFromCode(tr.Error, tr.ErrorDescription)
	}

	if resp.StatusCode != http.StatusOK {
		kind := AuthProtocol
		if resp.StatusCode >= http.StatusInternalServerError {
			kind = AuthNetworkFailure
		}
		return nil, &AuthError{Kind: kind, Description: fmt.Sprintf("token request failed with status %d", resp.StatusCode)}
	}

	if tr.AccessToken == "" {
		return nil, &AuthError{Kind: AuthProtocol, Description: "token response is missing access_token"}
	}
	if tr.ExpiresIn <= 0 {
		return nil, &AuthError{Kind: AuthProtocol, Description: "token response is missing expires_in"}
	}

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	return &Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC(),
	}, nil
}

// classifyError converts errors from golang.org/x/oauth2 into AuthErrors.
func classifyError(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			out := errorFromCode(re.ErrorCode, re.ErrorDescription)
			out.Err = err
			return out
		}
		kind := AuthProtocol
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			kind = AuthNetworkFailure
		}
		return &AuthError{Kind: kind, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return &AuthError{Kind: AuthNetworkFailure, Err: err}
	}
	return &AuthError{Kind: AuthProtocol, Err: err}
}
