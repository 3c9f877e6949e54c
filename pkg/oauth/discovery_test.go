package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscoveryServer(t *testing.T, revocation bool) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		doc := map[string]interface{}{
			"issuer":                        server.URL,
			"authorization_endpoint":        server.URL + "/authorize",
			"token_endpoint":                server.URL + "/token",
			"device_authorization_endpoint": server.URL + "/device",
			"jwks_uri":                      server.URL + "/jwks",
		}
		if revocation {
			doc["revocation_endpoint"] = server.URL + "/revoke"
		}
		writeJSON(w, http.StatusOK, doc)
	}))
	return server
}

func TestDiscover(t *testing.T) {
	server := newDiscoveryServer(t, true)
	defer server.Close()

	c := NewClient(Config{ClientID: "cco-cli"}, WithHTTPClient(server.Client()))
	ep, err := c.Discover(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/device", ep.DeviceAuthURL)
	assert.Equal(t, server.URL+"/token", ep.TokenURL)
	assert.Equal(t, server.URL+"/revoke", ep.RevocationURL)
}

func TestResolve(t *testing.T) {
	t.Run("fills missing endpoints and keeps configured ones", func(t *testing.T) {
		server := newDiscoveryServer(t, false)
		defer server.Close()

		c := NewClient(Config{
			ClientID:  "cco-cli",
			Endpoints: Endpoints{TokenURL: "https://override.example.com/token"},
		}, WithHTTPClient(server.Client()))

		require.NoError(t, c.Resolve(context.Background(), server.URL))
		ep := c.Config().Endpoints
		assert.Equal(t, server.URL+"/device", ep.DeviceAuthURL)
		assert.Equal(t, "https://override.example.com/token", ep.TokenURL)
		assert.Empty(t, ep.RevocationURL)
	})

	t.Run("tolerates discovery failure when only revocation is missing", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c := NewClient(Config{Endpoints: Endpoints{DeviceAuthURL: "https://a/device", TokenURL: "https://a/token"}},
			WithHTTPClient(server.Client()))
		assert.NoError(t, c.Resolve(context.Background(), server.URL))
	})

	t.Run("fails when required endpoints cannot be discovered", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c := NewClient(Config{}, WithHTTPClient(server.Client()))
		assert.Error(t, c.Resolve(context.Background(), server.URL))
	})
}
