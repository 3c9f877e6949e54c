package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// setting is one key `cco update config set` may change.
type setting struct {
	get func(*Config) string
	set func(*Config, string) error
}

var settings = map[string]setting{
	"channel": {
		get: func(c *Config) string { return c.Releases.Channel },
		set: func(c *Config, v string) error {
			c.Releases.Channel = strings.ToLower(v)
			return nil
		},
	},
	"checkInterval": {
		get: func(c *Config) string { return c.Releases.CheckInterval },
		set: func(c *Config, v string) error {
			c.Releases.CheckInterval = strings.ToLower(v)
			return nil
		},
	},
	"keepBackup": {
		get: func(c *Config) string { return strconv.FormatBool(c.Releases.KeepBackup) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return ValidationError{Field: "releases.keepBackup", Value: v, Message: "must be true or false"}
			}
			c.Releases.KeepBackup = b
			return nil
		},
	},
}

// SettingKeys lists the keys accepted by Set, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookupSetting(key string) (setting, error) {
	s, ok := settings[strings.TrimPrefix(key, "releases.")]
	if !ok {
		return setting{}, fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	return s, nil
}

// Get returns the current value of a settable key.
func (c *Config) Get(key string) (string, error) {
	s, err := lookupSetting(key)
	if err != nil {
		return "", err
	}
	return s.get(c), nil
}

// Set changes a settable key and validates the result. On error c is left
// unchanged.
func (c *Config) Set(key, value string) error {
	s, err := lookupSetting(key)
	if err != nil {
		return err
	}
	next := *c
	if err := s.set(&next, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
