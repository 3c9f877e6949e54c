// Package config provides configuration management for cco.
//
// Configuration is read from a single directory, ~/.config/cco by default.
// The --config-path flag or the CCO_CONFIG_PATH environment variable selects
// another directory. The directory holds:
//
//   - config.yaml: user settings, decoded on top of GetDefaultConfig
//   - state.yaml: when the last update check and install happened
//   - tokens.json: the credential, owned by internal/tokenstore
//
// # Example config.yaml
//
//	auth:
//	  issuer: https://auth.visiquate.com/application/o/cco-cli/
//	  clientID: cco-cli
//	  refreshBuffer: 5m
//	releases:
//	  channel: stable
//	  checkInterval: weekly
//	  keepBackup: true
//	  allowedHosts:
//	    - cco-api.visiquate.com
//	    - .r2.cloudflarestorage.com
//
// Unknown keys are rejected so typos do not silently fall back to defaults.
// Every load is validated; Validate reports all problems at once as
// ValidationErrors.
package config
