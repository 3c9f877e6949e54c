package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// providerClaims are the discovery document fields go-oidc does not expose
// through Provider.Endpoint.
type providerClaims struct {
	RevocationEndpoint          string `json:"revocation_endpoint"`
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// Discover resolves the identity provider endpoints from the issuer's
// OpenID Connect discovery document.
func (c *Client) Discover(ctx context.Context, issuer string) (*Endpoints, error) {
	ctx = oidc.ClientContext(ctx, c.httpClient)

	provider, err := oidc.NewProvider(ctx, strings.TrimSpace(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, err)
	}

	var claims providerClaims
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document for %s: %w", issuer, err)
	}

	ep := provider.Endpoint()
	endpoints := &Endpoints{
		DeviceAuthURL: ep.DeviceAuthURL,
		TokenURL:      ep.TokenURL,
		RevocationURL: claims.RevocationEndpoint,
	}
	if endpoints.DeviceAuthURL == "" {
		endpoints.DeviceAuthURL = claims.DeviceAuthorizationEndpoint
	}
	if endpoints.DeviceAuthURL == "" {
		return nil, fmt.Errorf("issuer %s does not support the device authorization grant", issuer)
	}

	c.logger.Debug("Discovered OAuth endpoints",
		"issuer", issuer,
		"device_authorization_endpoint", endpoints.DeviceAuthURL,
		"token_endpoint", endpoints.TokenURL,
		"revocation_endpoint", endpoints.RevocationURL)

	return endpoints, nil
}

// Resolve fills in endpoints the configuration leaves empty by running
// discovery against issuer. Explicitly configured endpoints win.
func (c *Client) Resolve(ctx context.Context, issuer string) error {
	ep := c.cfg.Endpoints
	if ep.DeviceAuthURL != "" && ep.TokenURL != "" && ep.RevocationURL != "" {
		return nil
	}

	discovered, err := c.Discover(ctx, issuer)
	if err != nil {
		if ep.DeviceAuthURL != "" && ep.TokenURL != "" {
			// Only the optional revocation endpoint is missing.
			c.logger.Debug("Discovery failed, continuing without revocation endpoint", "error", err)
			return nil
		}
		return err
	}

	if ep.DeviceAuthURL == "" {
		ep.DeviceAuthURL = discovered.DeviceAuthURL
	}
	if ep.TokenURL == "" {
		ep.TokenURL = discovered.TokenURL
	}
	if ep.RevocationURL == "" {
		ep.RevocationURL = discovered.RevocationURL
	}
	c.cfg.Endpoints = ep
	return nil
}
