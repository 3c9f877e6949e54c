package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for cco.
type Config struct {
	Auth     AuthConfig     `yaml:"auth"`
	Releases ReleasesConfig `yaml:"releases"`
}

// AuthConfig configures login and the stored credential.
type AuthConfig struct {
	Issuer    string          `yaml:"issuer,omitempty"`    // OpenID Connect issuer used for endpoint discovery
	ClientID  string          `yaml:"clientID,omitempty"`  // Public client identifier (default: cco-cli)
	Scopes    []string        `yaml:"scopes,omitempty"`    // Requested scopes
	Discover  bool            `yaml:"discover"`            // Resolve missing endpoints from the issuer (default: true)
	Endpoints EndpointsConfig `yaml:"endpoints,omitempty"` // Explicit endpoints win over discovery

	RefreshBuffer   Duration `yaml:"refreshBuffer,omitempty"`   // Refresh this long before expiry (default: 5m)
	RefreshAttempts int      `yaml:"refreshAttempts,omitempty"` // Refresh attempts per call, 1 disables retries (default: 3)
	CredentialsPath string   `yaml:"credentialsPath,omitempty"` // Credential file (default: ~/.config/cco/tokens.json)
}

// EndpointsConfig lists identity provider endpoints.
type EndpointsConfig struct {
	DeviceAuthorization string `yaml:"deviceAuthorization,omitempty"`
	Token               string `yaml:"token,omitempty"`
	Revocation          string `yaml:"revocation,omitempty"`
}

// ReleasesConfig configures update checks and installs.
type ReleasesConfig struct {
	APIURL           string   `yaml:"apiURL,omitempty"`           // Release API base URL
	Channel          string   `yaml:"channel,omitempty"`          // Release channel (default: stable)
	AllowedHosts     []string `yaml:"allowedHosts,omitempty"`     // Download hosts; a leading "." allows subdomains
	MaxURLExpiry     Duration `yaml:"maxURLExpiry,omitempty"`     // Longest accepted presigned URL lifetime (default: 1h)
	MaxDownloadBytes int64    `yaml:"maxDownloadBytes,omitempty"` // Hard download ceiling (default: 100MiB)
	Timeout          Duration `yaml:"timeout,omitempty"`          // Deadline for a whole update (default: 10m)
	SelfCheckTimeout Duration `yaml:"selfCheckTimeout,omitempty"` // Deadline for the post-install --version run (default: 10s)
	CheckInterval    string   `yaml:"checkInterval,omitempty"`    // daily, weekly or never (default: daily)
	KeepBackup       bool     `yaml:"keepBackup"`                 // Keep the previous binary after a successful update
	PublicKey        string   `yaml:"publicKey,omitempty"`        // Optional minisign key for release signatures
}

// Duration is a time.Duration written as "10m" in YAML. Bare integers are
// read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

// ParseDuration parses "90s", "5m" or a plain number of seconds.
func ParseDuration(s string) (Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(parsed), nil
}
