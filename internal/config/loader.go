package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cco/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/cco"
	configFileName = "config.yaml"

	// EnvConfigPath overrides the configuration directory.
	EnvConfigPath = "CCO_CONFIG_PATH"
)

// DefaultConfigDir returns ~/.config/cco.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// ResolveConfigDir picks the configuration directory: the flag value, then
// CCO_CONFIG_PATH, then the default.
func ResolveConfigDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return DefaultConfigDir()
}

// FilePath returns the config.yaml location inside configPath.
func FilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// validates the result. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := FilePath(configPath)
	config := GetDefaultConfig()

	// #nosec G304 -- the config path is chosen by the user
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Message: err.Error(), Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &ConfigurationError{
			FilePath:    configFilePath,
			ErrorType:   "parse",
			Message:     err.Error(),
			Suggestions: []string{"Check the YAML syntax and key names", "Run 'cco update config show' to see the effective settings"},
			Err:         err,
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, &ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "validation",
			Message:   err.Error(),
			Err:       err,
		}
	}

	logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// SaveConfig writes cfg to config.yaml in configPath.
func SaveConfig(configPath string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	path := FilePath(configPath)
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return err
	}
	logging.Info("ConfigLoader", "Saved configuration to %s", path)
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers see the old or the new content and never a mix.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
