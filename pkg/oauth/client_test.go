package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, server *httptest.Server, revocation bool) *Client {
	t.Helper()
	ep := Endpoints{
		DeviceAuthURL: server.URL + "/device/code",
		TokenURL:      server.URL + "/token",
	}
	if revocation {
		ep.RevocationURL = server.URL + "/revoke"
	}
	return NewClient(Config{ClientID: "cco-cli", Scopes: []string{"openid"}, Endpoints: ep},
		WithHTTPClient(server.Client()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		c := NewClient(Config{ClientID: "cco-cli"})
		if c.httpClient == nil {
			t.Error("expected httpClient to be set")
		}
		if c.httpClient.Timeout != DefaultHTTPTimeout {
			t.Errorf("expected timeout %v, got %v", DefaultHTTPTimeout, c.httpClient.Timeout)
		}
		if c.logger == nil {
			t.Error("expected logger to be set")
		}
	})

	t.Run("applies options", func(t *testing.T) {
		customHTTP := &http.Client{Timeout: 10 * time.Second}
		c := NewClient(Config{}, WithHTTPClient(customHTTP))
		if c.httpClient != customHTTP {
			t.Error("expected custom httpClient to be set")
		}
	})
}

func TestRequestDeviceCode(t *testing.T) {
	t.Run("parses device authorization", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/device/code" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Failed to parse form: %v", err)
			}
			if r.Form.Get("client_id") != "cco-cli" {
				t.Errorf("expected client_id cco-cli, got %q", r.Form.Get("client_id"))
			}
			if r.Form.Get("scope") != "openid" {
				t.Errorf("expected scope openid, got %q", r.Form.Get("scope"))
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"device_code":               "dev-123",
				"user_code":                 "ABCD-EFGH",
				"verification_uri":          "https://auth.example.com/device",
				"verification_uri_complete": "https://auth.example.com/device?code=ABCD-EFGH",
				"expires_in":                600,
				"interval":                  5,
			})
		}))
		defer server.Close()

		da, err := newTestClient(t, server, false).RequestDeviceCode(context.Background())
		if err != nil {
			t.Fatalf("RequestDeviceCode failed: %v", err)
		}
		if da.DeviceCode != "dev-123" || da.UserCode != "ABCD-EFGH" {
			t.Errorf("unexpected codes: %+v", da)
		}
		if da.Interval != 5 {
			t.Errorf("expected interval 5, got %d", da.Interval)
		}
		if time.Until(da.Expiry) < 9*time.Minute {
			t.Errorf("expected expiry about 10 minutes out, got %v", da.Expiry)
		}
	})

	t.Run("rejects incomplete response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"device_code": "dev-123"})
		}))
		defer server.Close()

		_, err := newTestClient(t, server, false).RequestDeviceCode(context.Background())
		if !errors.Is(err, ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
}

func TestPollDeviceToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]interface{}
		wantErr error
	}{
		{"pending", http.StatusBadRequest, map[string]interface{}{"error": "authorization_pending"}, ErrAuthPending},
		{"slow down", http.StatusBadRequest, map[string]interface{}{"error": "slow_down"}, ErrSlowDown},
		{"denied", http.StatusBadRequest, map[string]interface{}{"error": "access_denied"}, ErrAccessDenied},
		{"expired", http.StatusBadRequest, map[string]interface{}{"error": "expired_token"}, ErrAuthExpired},
		{"unknown code", http.StatusBadRequest, map[string]interface{}{"error": "invalid_client"}, ErrProtocol},
		{"server error", http.StatusBadGateway, nil, ErrNetworkFailure},
		{"missing expires_in", http.StatusOK, map[string]interface{}{"access_token": "at"}, ErrProtocol},
		{"missing access_token", http.StatusOK, map[string]interface{}{"expires_in": 3600}, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server, false).PollDeviceToken(context.Background(), "dev-123")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Failed to parse form: %v", err)
			}
			if r.Form.Get("grant_type") != DeviceCodeGrantType {
				t.Errorf("expected device_code grant, got %q", r.Form.Get("grant_type"))
			}
			if r.Form.Get("device_code") != "dev-123" {
				t.Errorf("expected device_code dev-123, got %q", r.Form.Get("device_code"))
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "at",
				"refresh_token": "rt",
				"expires_in":    3600,
			})
		}))
		defer server.Close()

		c := NewClient(Config{ClientID: "cco-cli", Endpoints: Endpoints{TokenURL: server.URL + "/token"}},
			WithClock(func() time.Time { return now }))

		cred, err := c.PollDeviceToken(context.Background(), "dev-123")
		if err != nil {
			t.Fatalf("PollDeviceToken failed: %v", err)
		}
		if cred.AccessToken != "at" || cred.RefreshToken != "rt" {
			t.Errorf("unexpected credential: %+v", cred)
		}
		if cred.TokenType != DefaultTokenType {
			t.Errorf("expected default token type, got %q", cred.TokenType)
		}
		if !cred.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Errorf("expected expiry %v, got %v", now.Add(time.Hour), cred.ExpiresAt)
		}
	})
}

func TestRefresh(t *testing.T) {
	t.Run("makes exactly one request and keeps refresh token", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Failed to parse form: %v", err)
			}
			if r.Form.Get("grant_type") != "refresh_token" {
				t.Errorf("expected refresh_token grant, got %q", r.Form.Get("grant_type"))
			}
			if r.Form.Get("refresh_token") != "old-rt" {
				t.Errorf("expected old-rt, got %q", r.Form.Get("refresh_token"))
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token": "new-at",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		cred, err := newTestClient(t, server, false).Refresh(context.Background(), "old-rt")
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if cred.AccessToken != "new-at" {
			t.Errorf("expected new-at, got %q", cred.AccessToken)
		}
		if cred.RefreshToken != "old-rt" {
			t.Errorf("expected refresh token to be kept, got %q", cred.RefreshToken)
		}
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("expected 1 request, got %d", got)
		}
	})

	t.Run("invalid_grant is expired", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"})
		}))
		defer server.Close()

		_, err := newTestClient(t, server, false).Refresh(context.Background(), "old-rt")
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("expected expired error, got %v", err)
		}
	})

	t.Run("server error is temporary", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newTestClient(t, server, false).Refresh(context.Background(), "old-rt")
		var ae *AuthError
		if !errors.As(err, &ae) || !ae.Temporary() {
			t.Errorf("expected temporary AuthError, got %v", err)
		}
	})

	t.Run("no refresh token", func(t *testing.T) {
		_, err := NewClient(Config{}).Refresh(context.Background(), "")
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("expected expired error, got %v", err)
		}
	})
}

func TestRevoke(t *testing.T) {
	t.Run("posts token with hint", func(t *testing.T) {
		var got string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Failed to parse form: %v", err)
			}
			got = r.Form.Get("token") + "|" + r.Form.Get("token_type_hint")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		if err := newTestClient(t, server, true).Revoke(context.Background(), "rt", "refresh_token"); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
		if got != "rt|refresh_token" {
			t.Errorf("unexpected revocation form %q", got)
		}
	})

	t.Run("unsupported without endpoint", func(t *testing.T) {
		err := NewClient(Config{}).Revoke(context.Background(), "rt", "")
		if !errors.Is(err, ErrRevocationUnsupported) {
			t.Errorf("expected ErrRevocationUnsupported, got %v", err)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		if err := newTestClient(t, server, true).Revoke(context.Background(), "rt", ""); err == nil {
			t.Error("expected error for 503")
		}
	})
}
