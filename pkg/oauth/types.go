package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultRefreshBuffer is how long before expiry a credential is treated as
// expired and refreshed. It absorbs clock skew and request latency.
const DefaultRefreshBuffer = 5 * time.Minute

// DeviceCodeGrantType is the grant_type used when polling the token endpoint
// during the device authorization flow (RFC 8628 section 3.4).
const DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// DefaultTokenType is assumed when the identity provider omits token_type.
const DefaultTokenType = "Bearer"

// Endpoints are the identity provider URLs used by the CLI.
type Endpoints struct {
	DeviceAuthURL string
	TokenURL      string
	// RevocationURL is optional. Logout skips server-side revocation when empty.
	RevocationURL string
}

// Config identifies the CLI to the identity provider.
type Config struct {
	ClientID  string
	Scopes    []string
	Endpoints Endpoints
}

// Credential is the persisted credential set.
type Credential struct {
	// AccessToken is the bearer token presented to the release API.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens. It is empty when the
	// provider issued none, but always present in the persisted file.
	RefreshToken string `json:"refresh_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresAt is the absolute expiry of AccessToken.
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the access token is expired, or will be
// within buffer, at the given instant: now + buffer >= ExpiresAt.
func (c *Credential) ExpiresWithin(buffer time.Duration, now time.Time) bool {
	return !now.Add(buffer).Before(c.ExpiresAt)
}

// Validate checks the fields every usable credential must carry.
func (c *Credential) Validate() error {
	if c == nil {
		return errors.New("credential is nil")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("credential has no access_token")
	}
	if c.ExpiresAt.IsZero() {
		return errors.New("credential has no expires_at")
	}
	return nil
}

// Equal compares two credentials field by field. Timestamps are compared as
// instants so a credential equals its own JSON round trip.
func (c *Credential) Equal(o *Credential) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.AccessToken == o.AccessToken &&
		c.RefreshToken == o.RefreshToken &&
		c.TokenType == o.TokenType &&
		c.ExpiresAt.Equal(o.ExpiresAt)
}

// ToOAuth2Token converts the credential for use with golang.org/x/oauth2.
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

// CredentialFromOAuth2 converts a token returned by golang.org/x/oauth2.
func CredentialFromOAuth2(t *oauth2.Token) *Credential {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return &Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    t.Expiry.UTC(),
	}
}

// IDTokenClaims holds the identity claims read from a JWT access token.
// They are for display only; the signature is not verified.
type IDTokenClaims struct {
	Subject string
	Email   string
	Name    string
	Issuer  string
}

// ParseClaims extracts display claims from a JWT without verifying it.
// Opaque (non-JWT) tokens return an error.
func ParseClaims(raw string) (*IDTokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("access token is not a JWT: %w", err)
	}

	str := func(key string) string {
		if v, ok := claims[key].(string); ok {
			return v
		}
		return ""
	}

	out := &IDTokenClaims{
		Subject: str("sub"),
		Email:   str("email"),
		Name:    str("name"),
		Issuer:  str("iss"),
	}
	if out.Name == "" {
		out.Name = str("preferred_username")
	}
	return out, nil
}
