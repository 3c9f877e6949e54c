// Package tokenstore persists the CLI credential and hands out access tokens
// that are valid for at least a caller-chosen buffer.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cco/internal/securefile"
	"cco/pkg/logging"
	"cco/pkg/oauth"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

// DefaultCredentialsFile is the credential location relative to the user's
// home directory.
const DefaultCredentialsFile = ".config/cco/tokens.json"

const (
	revokeTimeout = 5 * time.Second
	lockTimeout   = 30 * time.Second
)

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Credential, error)
}

// Revoker invalidates a token server-side.
type Revoker interface {
	Revoke(ctx context.Context, token, tokenTypeHint string) error
}

// Config configures a TokenStore.
type Config struct {
	// Path is the credential file location.
	Path string
	// RefreshBuffer is the buffer used by AccessToken. Defaults to
	// oauth.DefaultRefreshBuffer.
	RefreshBuffer time.Duration
	// Retry bounds refresh attempts. Defaults to DefaultRetryPolicy.
	Retry RetryPolicy
}

// DefaultPath returns ~/.config/cco/tokens.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultCredentialsFile), nil
}

// TokenStore provides durable, owner-only storage for the CLI credential.
//
// SECURITY: token values are never logged. The file is written atomically
// through securefile, which verifies the owner-only restriction after every
// write and refuses to read a file that other users can access.
type TokenStore struct {
	cfg       Config
	files     securefile.Store
	refresher Refresher
	revoker   Revoker
	logger    *slog.Logger
	now       func() time.Time

	refreshGroup singleflight.Group
}

// Option configures a TokenStore.
type Option func(*TokenStore)

// WithRevoker enables best-effort server-side revocation on Clear.
func WithRevoker(r Revoker) Option {
	return func(s *TokenStore) {
		s.revoker = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *TokenStore) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) {
		s.now = now
	}
}

// New creates a TokenStore. The refresher may be nil for read-only use, in
// which case a near-expiry credential fails like a failed refresh.
func New(cfg Config, files securefile.Store, refresher Refresher, opts ...Option) (*TokenStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("credential path is required")
	}
	if files == nil {
		return nil, errors.New("secure file store is required")
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = oauth.DefaultRefreshBuffer
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	s := &TokenStore{
		cfg:       cfg,
		files:     files,
		refresher: refresher,
		logger:    logging.Logger("TokenStore"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the credential file location.
func (s *TokenStore) Path() string {
	return s.cfg.Path
}

func (s *TokenStore) lockPath() string {
	return s.cfg.Path + ".lock"
}

func (s *TokenStore) lock(ctx context.Context) (*securefile.FileLock, error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	return securefile.Lock(ctx, s.lockPath())
}

// Store persists cred, replacing any existing credential.
func (s *TokenStore) Store(ctx context.Context, cred *oauth.Credential) error {
	if err := cred.Validate(); err != nil {
		return &StorageError{Kind: Corrupt, Path: s.cfg.Path, Err: err}
	}

	lk, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()

	return s.storeLocked(cred)
}

func (s *TokenStore) storeLocked(cred *oauth.Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := s.files.WriteFile(s.cfg.Path, data); err != nil {
		logging.Audit(logging.AuditEvent{Action: "token_stored", Outcome: "failure", Target: s.cfg.Path, Err: err})
		kind := Corrupt
		if errors.Is(err, securefile.ErrInsecure) || errors.Is(err, fs.ErrPermission) {
			kind = PermissionDenied
		}
		return &StorageError{Kind: kind, Path: s.cfg.Path, Err: err}
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_stored",
		Outcome: "success",
		Target:  s.cfg.Path,
		Detail:  "expires_at=" + cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// Load reads the stored credential.
func (s *TokenStore) Load() (*oauth.Credential, error) {
	data, err := s.files.ReadFile(s.cfg.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, &StorageError{Kind: NotFound, Path: s.cfg.Path}
		case errors.Is(err, securefile.ErrInsecure), errors.Is(err, fs.ErrPermission):
			logging.Audit(logging.AuditEvent{Action: "token_rejected", Outcome: "failure", Target: s.cfg.Path, Err: err})
			return nil, &StorageError{Kind: PermissionDenied, Path: s.cfg.Path, Err: err}
		default:
			return nil, &StorageError{Kind: Corrupt, Path: s.cfg.Path, Err: err}
		}
	}

	var cred oauth.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, &StorageError{Kind: Corrupt, Path: s.cfg.Path, Err: err}
	}
	if err := cred.Validate(); err != nil {
		return nil, &StorageError{Kind: Corrupt, Path: s.cfg.Path, Err: err}
	}
	return &cred, nil
}

// AccessToken returns a token valid for at least the configured refresh buffer.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return s.GetValidAccessToken(ctx, s.cfg.RefreshBuffer)
}

// GetValidAccessToken returns an access token whose remaining lifetime is at
// least buffer, refreshing and persisting a new credential first if needed.
//
// Without a stored credential it returns ErrNotFound and the caller has to
// run the device flow. A refresh that fails after the configured attempts is
// returned as *RefreshError.
func (s *TokenStore) GetValidAccessToken(ctx context.Context, buffer time.Duration) (string, error) {
	cred, err := s.Load()
	if err != nil {
		return "", err
	}
	if !cred.ExpiresWithin(buffer, s.now()) {
		return cred.AccessToken, nil
	}

	// Concurrent callers in this process share one refresh.
	v, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx, buffer, false)
	})
	if err != nil {
		return "", err
	}
	// A shared refresh was started with the first caller's buffer.
	fresh := v.(*oauth.Credential)
	if fresh.ExpiresWithin(buffer, s.now()) {
		return "", &RefreshError{Attempts: 0, Err: &oauth.AuthError{
			Kind:        oauth.AuthProtocol,
			Description: fmt.Sprintf("refreshed token expires at %s, inside the %s buffer", fresh.ExpiresAt.Format(time.RFC3339), buffer),
		}}
	}
	return fresh.AccessToken, nil
}

// Refresh exchanges the refresh token for a new credential even when the
// current one is still valid, and persists it.
func (s *TokenStore) Refresh(ctx context.Context) (*oauth.Credential, error) {
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	v, err, _ := s.refreshGroup.Do("force", func() (interface{}, error) {
		return s.refresh(ctx, s.cfg.RefreshBuffer, true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth.Credential), nil
}

func (s *TokenStore) refresh(ctx context.Context, buffer time.Duration, force bool) (*oauth.Credential, error) {
	lk, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lk.Unlock() }()

	// Another process may have refreshed while we waited for the lock.
	cred, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !force && !cred.ExpiresWithin(buffer, s.now()) {
		return cred, nil
	}

	if s.refresher == nil || cred.RefreshToken == "" {
		return nil, &RefreshError{Attempts: 0, Err: oauth.ErrAuthExpired}
	}

	attempts := 0
	op := func() (*oauth.Credential, error) {
		attempts++
		fresh, err := s.refresher.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return fresh, nil
	}

	fresh, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.cfg.Retry.backOff()),
		backoff.WithMaxTries(uint(s.cfg.Retry.attempts())),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Token refresh failed, retrying", "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		logging.Audit(logging.AuditEvent{Action: "token_refreshed", Outcome: "failure", Target: s.cfg.Path, Err: err})
		return nil, &RefreshError{Attempts: attempts, Err: err}
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	if err := s.storeLocked(fresh); err != nil {
		return nil, err
	}

	if fresh.ExpiresWithin(buffer, s.now()) {
		// The provider issues tokens shorter-lived than the buffer; handing
		// this one out would break the caller's lifetime guarantee.
		return nil, &RefreshError{Attempts: attempts, Err: &oauth.AuthError{
			Kind:        oauth.AuthProtocol,
			Description: fmt.Sprintf("refreshed token expires at %s, inside the %s buffer", fresh.ExpiresAt.Format(time.RFC3339), buffer),
		}}
	}
	return fresh, nil
}

// Clear deletes the local credential. Server-side revocation is attempted
// first on a best-effort basis and never fails the call.
func (s *TokenStore) Clear(ctx context.Context) error {
	lk, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()

	cred, loadErr := s.Load()
	if loadErr == nil {
		s.revoke(ctx, cred)
	}

	if err := s.files.Remove(s.cfg.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		logging.Audit(logging.AuditEvent{Action: "token_removed", Outcome: "failure", Target: s.cfg.Path, Err: err})
		return &StorageError{Kind: PermissionDenied, Path: s.cfg.Path, Err: err}
	}

	logging.Audit(logging.AuditEvent{Action: "token_removed", Outcome: "success", Target: s.cfg.Path})
	return nil
}

func (s *TokenStore) revoke(ctx context.Context, cred *oauth.Credential) {
	if s.revoker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()

	token, hint := cred.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = cred.AccessToken, "access_token"
	}

	if err := s.revoker.Revoke(ctx, token, hint); err != nil {
		if errors.Is(err, oauth.ErrRevocationUnsupported) {
			s.logger.Debug("Skipping server-side revocation", "reason", err)
			return
		}
		s.logger.Warn("Server-side token revocation failed, removing local credential anyway", "error", err)
		return
	}
	logging.Audit(logging.AuditEvent{Action: "token_revoked", Outcome: "success", Detail: "hint=" + hint})
}

// Status describes the stored credential for display.
type Status struct {
	Subject         string
	Email           string
	Name            string
	ExpiresAt       time.Time
	Expired         bool
	HasRefreshToken bool
}

// Status reports who the stored credential belongs to and when it expires.
// Identity fields are empty for opaque tokens.
func (s *TokenStore) Status() (*Status, error) {
	cred, err := s.Load()
	if err != nil {
		return nil, err
	}

	st := &Status{
		ExpiresAt:       cred.ExpiresAt,
		Expired:         cred.ExpiresWithin(0, s.now()),
		HasRefreshToken: cred.RefreshToken != "",
	}
	if claims, err := oauth.ParseClaims(cred.AccessToken); err == nil {
		st.Subject = claims.Subject
		st.Email = claims.Email
		st.Name = claims.Name
	}
	return st, nil
}
