package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cco/internal/securefile"
	"cco/pkg/oauth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	calls   int32
	delay   time.Duration
	results []refreshResult
}

type refreshResult struct {
	cred *oauth.Credential
	err  error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth.Credential, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	r := f.results[n]
	if r.cred != nil {
		c := *r.cred
		return &c, nil
	}
	return nil, r.err
}

type fakeRevoker struct {
	token, hint string
	err         error
}

func (f *fakeRevoker) Revoke(ctx context.Context, token, hint string) error {
	f.token, f.hint = token, hint
	return f.err
}

func newTestStore(t *testing.T, refresher Refresher, opts ...Option) *TokenStore {
	t.Helper()
	files, err := securefile.New()
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := New(Config{
		Path: filepath.Join(t.TempDir(), "cco", "tokens.json"),
		Retry: RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}, files, refresher, opts...)
	require.NoError(t, err)
	return s
}

func credentialExpiringIn(d time.Duration) *oauth.Credential {
	return &oauth.Credential{
		AccessToken:  "old-at",
		RefreshToken: "old-rt",
		TokenType:    "Bearer",
		ExpiresAt:    testNow.Add(d),
	}
}

func TestNew_Validation(t *testing.T) {
	files, err := securefile.New()
	require.NoError(t, err)

	_, err = New(Config{}, files, nil)
	assert.Error(t, err)

	_, err = New(Config{Path: "/tmp/x"}, nil, nil)
	assert.Error(t, err)

	s, err := New(Config{Path: "/tmp/x"}, files, nil)
	require.NoError(t, err)
	assert.Equal(t, oauth.DefaultRefreshBuffer, s.cfg.RefreshBuffer)
	assert.Equal(t, 3, s.cfg.Retry.MaxAttempts)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	cred := credentialExpiringIn(time.Hour)

	require.NoError(t, s.Store(context.Background(), cred))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.True(t, cred.Equal(loaded), "expected %+v, got %+v", cred, loaded)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestStoreRejectsIncompleteCredential(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.Store(context.Background(), &oauth.Credential{AccessToken: "at"})
	assert.True(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got %v", err)
}

func TestLoadErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		s := newTestStore(t, nil)
		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("corrupt json", func(t *testing.T) {
		s := newTestStore(t, nil)
		require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
		require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got %v", err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		s := newTestStore(t, nil)
		require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
		require.NoError(t, os.WriteFile(s.Path(), []byte(`{"access_token":"at"}`), 0o600))

		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got %v", err)
	})

	t.Run("world readable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("mode bits are not meaningful on Windows")
		}
		s := newTestStore(t, nil)
		require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))
		require.NoError(t, os.Chmod(s.Path(), 0o644))

		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrPermissionDenied), "expected ErrPermissionDenied, got %v", err)
	})
}

func TestGetValidAccessToken_NoCredential(t *testing.T) {
	s := newTestStore(t, &fakeRefresher{})
	_, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetValidAccessToken_FreshTokenIsNotRefreshed(t *testing.T) {
	r := &fakeRefresher{}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))

	tok, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "old-at", tok)
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.calls))
}

func TestGetValidAccessToken_RefreshesInsideBuffer(t *testing.T) {
	fresh := &oauth.Credential{AccessToken: "new-at", TokenType: "Bearer", ExpiresAt: testNow.Add(time.Hour)}
	r := &fakeRefresher{results: []refreshResult{{cred: fresh}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(200*time.Second)))

	tok, err := s.GetValidAccessToken(context.Background(), 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls), "expected exactly one refresh call")

	persisted, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-at", persisted.AccessToken)
	assert.Equal(t, "old-rt", persisted.RefreshToken, "refresh token should be kept when the server omits it")
	assert.True(t, persisted.ExpiresAt.Equal(fresh.ExpiresAt))
}

func TestRefresh_ForcesRefreshOfValidToken(t *testing.T) {
	fresh := &oauth.Credential{AccessToken: "new-at", RefreshToken: "new-rt", TokenType: "Bearer", ExpiresAt: testNow.Add(2 * time.Hour)}
	r := &fakeRefresher{results: []refreshResult{{cred: fresh}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))

	cred, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-at", cred.AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))

	persisted, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-rt", persisted.RefreshToken)
}

func TestRefresh_NoCredential(t *testing.T) {
	s := newTestStore(t, &fakeRefresher{})
	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetValidAccessToken_RetriesTransientFailures(t *testing.T) {
	fresh := &oauth.Credential{AccessToken: "new-at", RefreshToken: "new-rt", TokenType: "Bearer", ExpiresAt: testNow.Add(time.Hour)}
	transient := &oauth.AuthError{Kind: oauth.AuthNetworkFailure, Err: errors.New("connection reset")}
	r := &fakeRefresher{results: []refreshResult{{err: transient}, {err: transient}, {cred: fresh}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	tok, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok)
	assert.Equal(t, int32(3), atomic.LoadInt32(&r.calls))
}

func TestGetValidAccessToken_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := &oauth.AuthError{Kind: oauth.AuthNetworkFailure, Err: errors.New("timeout")}
	r := &fakeRefresher{results: []refreshResult{{err: transient}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	_, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	var re *RefreshError
	require.True(t, errors.As(err, &re), "expected RefreshError, got %v", err)
	assert.Equal(t, 3, re.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&r.calls))

	// The stale credential is left in place for inspection.
	persisted, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "old-at", persisted.AccessToken)
}

func TestGetValidAccessToken_PermanentFailureIsNotRetried(t *testing.T) {
	r := &fakeRefresher{results: []refreshResult{{err: &oauth.AuthError{Kind: oauth.AuthExpired, Code: "invalid_grant"}}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	_, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	assert.True(t, errors.Is(err, oauth.ErrAuthExpired), "expected expired error, got %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestGetValidAccessToken_SingleAttemptPolicy(t *testing.T) {
	files, err := securefile.New()
	require.NoError(t, err)
	r := &fakeRefresher{results: []refreshResult{{err: &oauth.AuthError{Kind: oauth.AuthNetworkFailure}}}}
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "tokens.json"), Retry: SingleAttempt()}, files, r,
		WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	_, err = s.GetValidAccessToken(context.Background(), 5*time.Minute)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestGetValidAccessToken_NeverReturnsTokenInsideBuffer(t *testing.T) {
	shortLived := &oauth.Credential{AccessToken: "short-at", TokenType: "Bearer", ExpiresAt: testNow.Add(time.Minute)}
	r := &fakeRefresher{results: []refreshResult{{cred: shortLived}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(30*time.Second)))

	tok, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	assert.Error(t, err)
	assert.Empty(t, tok)
}

func TestGetValidAccessToken_NoRefreshToken(t *testing.T) {
	r := &fakeRefresher{}
	s := newTestStore(t, r)
	cred := credentialExpiringIn(time.Minute)
	cred.RefreshToken = ""
	require.NoError(t, s.Store(context.Background(), cred))

	_, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
	var re *RefreshError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.calls))
}

func TestGetValidAccessToken_ConcurrentCallersShareRefresh(t *testing.T) {
	fresh := &oauth.Credential{AccessToken: "new-at", TokenType: "Bearer", ExpiresAt: testNow.Add(time.Hour)}
	r := &fakeRefresher{delay: 50 * time.Millisecond, results: []refreshResult{{cred: fresh}}}
	s := newTestStore(t, r)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	for _, tok := range tokens {
		assert.Equal(t, "new-at", tok)
	}
}

type gatedRefresher struct {
	started chan struct{}
	release chan struct{}
	cred    *oauth.Credential
	once    sync.Once
}

func (g *gatedRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth.Credential, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	c := *g.cred
	return &c, nil
}

func TestGetValidAccessToken_SharedRefreshHonoursEachBuffer(t *testing.T) {
	g := &gatedRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		cred:    &oauth.Credential{AccessToken: "new-at", TokenType: "Bearer", ExpiresAt: testNow.Add(30 * time.Minute)},
	}
	s := newTestStore(t, g)
	require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Minute)))

	type result struct {
		tok string
		err error
	}
	short := make(chan result, 1)
	long := make(chan result, 1)

	go func() {
		tok, err := s.GetValidAccessToken(context.Background(), 5*time.Minute)
		short <- result{tok, err}
	}()
	<-g.started
	go func() {
		tok, err := s.GetValidAccessToken(context.Background(), time.Hour)
		long <- result{tok, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(g.release)

	a := <-short
	require.NoError(t, a.err)
	assert.Equal(t, "new-at", a.tok)

	b := <-long
	var re *RefreshError
	assert.True(t, errors.As(b.err, &re), "got %v", b.err)
	assert.Empty(t, b.tok)
}

func TestClear(t *testing.T) {
	t.Run("revokes and removes", func(t *testing.T) {
		rev := &fakeRevoker{}
		s := newTestStore(t, nil, WithRevoker(rev))
		require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))

		require.NoError(t, s.Clear(context.Background()))
		assert.Equal(t, "old-rt", rev.token)
		assert.Equal(t, "refresh_token", rev.hint)

		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("revocation failure does not fail logout", func(t *testing.T) {
		rev := &fakeRevoker{err: errors.New("503")}
		s := newTestStore(t, nil, WithRevoker(rev))
		require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))

		require.NoError(t, s.Clear(context.Background()))
		_, err := s.Load()
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unsupported revocation is skipped", func(t *testing.T) {
		rev := &fakeRevoker{err: oauth.ErrRevocationUnsupported}
		s := newTestStore(t, nil, WithRevoker(rev))
		require.NoError(t, s.Store(context.Background(), credentialExpiringIn(time.Hour)))
		assert.NoError(t, s.Clear(context.Background()))
	})

	t.Run("nothing stored", func(t *testing.T) {
		rev := &fakeRevoker{}
		s := newTestStore(t, nil, WithRevoker(rev))
		assert.NoError(t, s.Clear(context.Background()))
		assert.Empty(t, rev.token)
	})
}

func TestStatus(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "dev@example.com",
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	s := newTestStore(t, nil)
	cred := credentialExpiringIn(time.Hour)
	cred.AccessToken = raw
	require.NoError(t, s.Store(context.Background(), cred))

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, "user-1", st.Subject)
	assert.Equal(t, "dev@example.com", st.Email)
	assert.False(t, st.Expired)
	assert.True(t, st.HasRefreshToken)
}
