package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing client id", func(c *Config) { c.Auth.ClientID = " " }, "auth.clientID"},
		{"no scopes", func(c *Config) { c.Auth.Scopes = nil }, "auth.scopes"},
		{"discovery without issuer", func(c *Config) { c.Auth.Issuer = "" }, "auth.issuer"},
		{"explicit endpoints without discovery", func(c *Config) {
			c.Auth.Discover = false
			c.Auth.Issuer = ""
			c.Auth.Endpoints = EndpointsConfig{
				DeviceAuthorization: "https://auth.example.com/device",
				Token:               "https://auth.example.com/token",
			}
		}, ""},
		{"no discovery and no endpoints", func(c *Config) { c.Auth.Discover = false }, "auth.endpoints"},
		{"http endpoint", func(c *Config) { c.Auth.Endpoints.Token = "http://auth.example.com/token" }, "auth.endpoints.token"},
		{"loopback http allowed", func(c *Config) { c.Releases.APIURL = "http://127.0.0.1:8080" }, ""},
		{"too many refresh attempts", func(c *Config) { c.Auth.RefreshAttempts = 50 }, "auth.refreshAttempts"},
		{"uppercase channel", func(c *Config) { c.Releases.Channel = "Stable!" }, "releases.channel"},
		{"no allowed hosts", func(c *Config) { c.Releases.AllowedHosts = nil }, "releases.allowedHosts"},
		{"host with scheme", func(c *Config) { c.Releases.AllowedHosts = []string{"https://x.example.com"} }, "not a host name"},
		{"zero timeout", func(c *Config) { c.Releases.Timeout = 0 }, "releases.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.ClientID = ""
	cfg.Releases.MaxDownloadBytes = -1

	var verrs ValidationErrors
	require.True(t, errors.As(cfg.Validate(), &verrs))
	assert.Len(t, verrs, 2)
}

func TestSet(t *testing.T) {
	cfg := GetDefaultConfig()

	require.NoError(t, cfg.Set("channel", "Beta"))
	assert.Equal(t, "beta", cfg.Releases.Channel)

	require.NoError(t, cfg.Set("releases.checkInterval", "never"))
	assert.Equal(t, "never", cfg.Releases.CheckInterval)

	require.NoError(t, cfg.Set("keepBackup", "true"))
	v, err := cfg.Get("keepBackup")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	assert.Error(t, cfg.Set("keepBackup", "maybe"))
	assert.Error(t, cfg.Set("apiURL", "https://elsewhere"))

	err = cfg.Set("checkInterval", "hourly")
	assert.Error(t, err)
	assert.Equal(t, "never", cfg.Releases.CheckInterval, "failed Set leaves config unchanged")
}

func TestSettingKeys(t *testing.T) {
	assert.Equal(t, []string{"channel", "checkInterval", "keepBackup"}, SettingKeys())
}
