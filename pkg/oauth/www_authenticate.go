package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// AuthChallenge is a parsed WWW-Authenticate header (RFC 6750 section 3).
type AuthChallenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="cco-api"
//	Bearer error="invalid_token", error_description="The token has expired"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	// Split into scheme and parameters
	parts := strings.SplitN(header, " ", 2)
	challenge := &AuthChallenge{
		Scheme: parts[0],
	}

	if len(parts) > 1 {
		params := parseAuthParams(parts[1])
		challenge.Realm = params["realm"]
		challenge.Scope = params["scope"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
	}

	return challenge, nil
}

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// parseAuthParams parses the parameter portion of a WWW-Authenticate header.
// Parameters are in the format: key1="value1", key2="value2"
func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)
	for _, match := range authParamRegex.FindAllStringSubmatch(paramStr, -1) {
		params[strings.ToLower(match[1])] = match[2]
	}
	return params
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401 response.
// Returns nil if no WWW-Authenticate header is present or if parsing fails.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}

// Describe returns a short human readable reason for the challenge.
func (c *AuthChallenge) Describe() string {
	if c == nil {
		return ""
	}
	switch {
	case c.ErrorDescription != "":
		return c.ErrorDescription
	case c.Error != "":
		return c.Error
	default:
		return ""
	}
}
