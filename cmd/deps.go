package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"cco/internal/config"
	"cco/internal/download"
	"cco/internal/presign"
	"cco/internal/releases"
	"cco/internal/securefile"
	"cco/internal/tokenstore"
	"cco/internal/updater"
	"cco/pkg/logging"
	"cco/pkg/oauth"

	"github.com/hashicorp/go-cleanhttp"
)

const credentialsFileName = "tokens.json"

// environment holds the collaborators a command needs, built from the
// loaded configuration. Nothing here touches the network until used.
type environment struct {
	configDir string
	cfg       config.Config
	oauth     *oauth.Client
	tokens    *tokenstore.TokenStore

	mu       sync.Mutex
	resolved bool
}

func loadEnvironment() (*environment, error) {
	dir, err := config.ResolveConfigDir(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = oauth.DefaultHTTPTimeout

	env := &environment{configDir: dir, cfg: cfg}
	env.oauth = oauth.NewClient(oauth.Config{
		ClientID: cfg.Auth.ClientID,
		Scopes:   cfg.Auth.Scopes,
		Endpoints: oauth.Endpoints{
			DeviceAuthURL: cfg.Auth.Endpoints.DeviceAuthorization,
			TokenURL:      cfg.Auth.Endpoints.Token,
			RevocationURL: cfg.Auth.Endpoints.Revocation,
		},
	}, oauth.WithHTTPClient(httpClient), oauth.WithLogger(logging.Logger("OAuth")))

	files, err := securefile.New()
	if err != nil {
		return nil, err
	}

	credPath := cfg.Auth.CredentialsPath
	if credPath == "" {
		credPath = filepath.Join(dir, credentialsFileName)
	}
	retry := tokenstore.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Auth.RefreshAttempts

	env.tokens, err = tokenstore.New(tokenstore.Config{
		Path:          credPath,
		RefreshBuffer: cfg.Auth.RefreshBuffer.Std(),
		Retry:         retry,
	}, files, lazyProvider{env}, tokenstore.WithRevoker(lazyProvider{env}))
	if err != nil {
		return nil, err
	}
	return env, nil
}

// resolveEndpoints runs discovery once, when the configuration asks for it.
func (e *environment) resolveEndpoints(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved || !e.cfg.Auth.Discover {
		return nil
	}
	if err := e.oauth.Resolve(ctx, e.cfg.Auth.Issuer); err != nil {
		return &oauth.AuthError{Kind: oauth.AuthNetworkFailure, Description: "endpoint discovery failed", Err: err}
	}
	e.resolved = true
	return nil
}

// lazyProvider defers endpoint discovery until a refresh or revocation
// actually happens, so reading a valid token stays offline.
type lazyProvider struct {
	env *environment
}

func (p lazyProvider) Refresh(ctx context.Context, refreshToken string) (*oauth.Credential, error) {
	if err := p.env.resolveEndpoints(ctx); err != nil {
		return nil, err
	}
	return p.env.oauth.Refresh(ctx, refreshToken)
}

func (p lazyProvider) Revoke(ctx context.Context, token, hint string) error {
	if err := p.env.resolveEndpoints(ctx); err != nil {
		return err
	}
	return p.env.oauth.Revoke(ctx, token, hint)
}

func (e *environment) releaseClient() (*releases.Client, error) {
	return releases.NewClient(e.cfg.Releases.APIURL, e.tokens,
		releases.WithUserAgent(userAgent()))
}

func (e *environment) stateFile() *config.StateFile {
	return config.NewStateFile(e.configDir)
}

// updateService wires the release client, URL validator, downloader and
// updater into one pipeline. progress may be nil.
func (e *environment) updateService(progress download.ProgressFunc) (*updater.Service, error) {
	rc := e.cfg.Releases

	client, err := e.releaseClient()
	if err != nil {
		return nil, err
	}
	validator, err := presign.NewValidator(rc.AllowedHosts, presign.WithMaxExpiry(rc.MaxURLExpiry.Std()))
	if err != nil {
		return nil, fmt.Errorf("invalid releases.allowedHosts: %w", err)
	}

	dlOpts := []download.Option{download.WithUserAgent(userAgent())}
	if progress != nil {
		dlOpts = append(dlOpts, download.WithProgress(progress))
	}
	dl, err := download.New(validator, dlOpts...)
	if err != nil {
		return nil, err
	}

	u, err := updater.New(updater.Config{
		CommandName:    "cco",
		CurrentVersion: GetVersion(),
		KeepBackup:     rc.KeepBackup,
		PublicKey:      rc.PublicKey,
	}, updater.WithSelfChecker(updater.CommandChecker{
		Timeout:        rc.SelfCheckTimeout.Std(),
		RequireVersion: true,
	}))
	if err != nil {
		return nil, err
	}

	return updater.NewService(updater.ServiceConfig{
		Channel:          rc.Channel,
		MaxDownloadBytes: rc.MaxDownloadBytes,
		Timeout:          rc.Timeout.Std(),
	}, client, validator, dl, u, updater.WithStateRecorder(e.stateFile()))
}
