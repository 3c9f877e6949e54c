package config

import (
	"time"
)

const (
	// DefaultIssuer is the identity provider cco authenticates against.
	DefaultIssuer = "https://auth.visiquate.com/application/o/cco-cli/"

	// DefaultClientID is the public OAuth client registered for the CLI.
	DefaultClientID = "cco-cli"

	// DefaultAPIURL is the release API base URL.
	DefaultAPIURL = "https://cco-api.visiquate.com"

	// DefaultMaxDownloadBytes caps a single release download.
	DefaultMaxDownloadBytes int64 = 100 << 20

	DefaultChannel       = "stable"
	DefaultCheckInterval = "daily"
)

// DefaultScopes are requested at login. offline_access yields a refresh token.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// DefaultAllowedHosts are the hosts presigned download URLs may point at.
var DefaultAllowedHosts = []string{"cco-api.visiquate.com", ".r2.cloudflarestorage.com"}

// GetDefaultConfig returns the built-in configuration. File values are
// decoded on top of it.
func GetDefaultConfig() Config {
	return Config{
		Auth: AuthConfig{
			Issuer:          DefaultIssuer,
			ClientID:        DefaultClientID,
			Scopes:          append([]string(nil), DefaultScopes...),
			Discover:        true,
			RefreshBuffer:   Duration(5 * time.Minute),
			RefreshAttempts: 3,
		},
		Releases: ReleasesConfig{
			APIURL:           DefaultAPIURL,
			Channel:          DefaultChannel,
			AllowedHosts:     append([]string(nil), DefaultAllowedHosts...),
			MaxURLExpiry:     Duration(time.Hour),
			MaxDownloadBytes: DefaultMaxDownloadBytes,
			Timeout:          Duration(10 * time.Minute),
			SelfCheckTimeout: Duration(10 * time.Second),
			CheckInterval:    DefaultCheckInterval,
		},
	}
}
