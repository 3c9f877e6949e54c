package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cco/internal/download"
	"cco/internal/releases"
	"cco/internal/version"
	"cco/pkg/logging"
)

// Check intervals accepted by ShouldCheck.
const (
	IntervalDaily  = "daily"
	IntervalWeekly = "weekly"
	IntervalNever  = "never"
)

// DefaultTimeout bounds a whole Apply call.
const DefaultTimeout = 10 * time.Minute

// ReleaseSource is the subset of the release API client the service uses.
type ReleaseSource interface {
	FetchLatest(ctx context.Context, channel string) (*releases.Metadata, error)
	FetchRelease(ctx context.Context, version string) (*releases.Metadata, error)
	FetchDownloadURL(ctx context.Context, version, platform string) (*releases.DownloadLocation, error)
}

// URLValidator approves a presigned URL for a release artifact.
type URLValidator interface {
	ValidateFor(rawURL, expectedPath string) error
}

// Fetcher streams a payload to disk.
type Fetcher interface {
	Stream(ctx context.Context, rawURL, destPath string, maxBytes int64) (*download.Result, error)
}

// StateRecorder persists when checks and updates happened.
type StateRecorder interface {
	RecordCheck(at time.Time) error
	RecordUpdate(at time.Time, version string) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Channel          string
	Platform         string
	MaxDownloadBytes int64
	Timeout          time.Duration
	// TempDir is where downloads are staged. Defaults to os.TempDir.
	TempDir string
}

// CheckResult is the outcome of an update check.
type CheckResult struct {
	Current   string
	Latest    string
	Available bool
	Notes     string
	Metadata  *releases.Metadata
}

// Service runs the full update pipeline: metadata, download URL, URL
// validation, streamed download and install.
type Service struct {
	cfg        ServiceConfig
	releases   ReleaseSource
	validator  URLValidator
	downloader Fetcher
	updater    *Updater
	state      StateRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStateRecorder records check and update times.
func WithStateRecorder(r StateRecorder) ServiceOption {
	return func(s *Service) {
		s.state = r
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, src ReleaseSource, validator URLValidator, fetcher Fetcher, u *Updater, opts ...ServiceOption) (*Service, error) {
	if src == nil || validator == nil || fetcher == nil || u == nil {
		return nil, errors.New("release source, validator, fetcher and updater are required")
	}
	if cfg.Channel == "" {
		cfg.Channel = releases.DefaultChannel
	}
	if cfg.Platform == "" {
		p, err := releases.DetectPlatform()
		if err != nil {
			return nil, err
		}
		cfg.Platform = p
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &Service{
		cfg:        cfg,
		releases:   src,
		validator:  validator,
		downloader: fetcher,
		updater:    u,
		logger:     logging.Logger("Update"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check looks up the latest release on channel and compares it with the
// installed version.
func (s *Service) Check(ctx context.Context, channel string) (*CheckResult, error) {
	if channel == "" {
		channel = s.cfg.Channel
	}
	meta, err := s.releases.FetchLatest(ctx, channel)
	if err != nil {
		return nil, err
	}

	current := s.updater.CurrentVersion()
	available, err := version.IsNewer(meta.Version, current)
	if err != nil {
		return nil, fmt.Errorf("release API returned unusable version: %w", err)
	}

	s.record(func() error { return s.state.RecordCheck(s.now()) })

	return &CheckResult{
		Current:   current,
		Latest:    meta.Version,
		Available: available,
		Notes:     meta.ReleaseNotes,
		Metadata:  meta,
	}, nil
}

// Apply installs targetVersion, or the latest release on channel when
// targetVersion is empty. The whole pipeline runs under the configured
// timeout.
func (s *Service) Apply(ctx context.Context, channel, targetVersion string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if channel == "" {
		channel = s.cfg.Channel
	}

	var (
		meta *releases.Metadata
		err  error
	)
	if targetVersion == "" {
		meta, err = s.releases.FetchLatest(ctx, channel)
	} else {
		meta, err = s.releases.FetchRelease(ctx, targetVersion)
	}
	if err != nil {
		return nil, err
	}

	current := s.updater.CurrentVersion()
	if version.Same(meta.Version, current) {
		return &Result{Version: meta.Version, State: Done, Skipped: true}, nil
	}
	if targetVersion == "" {
		if newer, _ := version.IsNewer(meta.Version, current); !newer {
			s.logger.Info("Installed version is newer than the latest release", "installed", current, "latest", meta.Version)
			return &Result{Version: current, State: Done, Skipped: true}, nil
		}
	}

	entry, err := meta.Entry(s.cfg.Platform)
	if err != nil {
		return nil, err
	}
	if err := entry.CheckSize(s.cfg.MaxDownloadBytes); err != nil {
		return nil, &download.DownloadError{Kind: download.SizeExceeded, Limit: s.cfg.MaxDownloadBytes, Err: err}
	}

	loc, err := s.releases.FetchDownloadURL(ctx, meta.Version, s.cfg.Platform)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateFor(loc.URL, entry.Path); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp(s.cfg.TempDir, "cco-update-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dest := filepath.Join(tmpDir, entry.ArchiveName())
	dl, err := s.downloader.Stream(ctx, loc.URL, dest, entry.Size)
	if err != nil {
		return nil, err
	}

	res, err := s.updater.Install(ctx, Request{Metadata: meta, Platform: s.cfg.Platform, Download: dl})
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		s.record(func() error { return s.state.RecordUpdate(s.now(), meta.Version) })
	}
	return res, nil
}

func (s *Service) record(fn func() error) {
	if s.state == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("Failed to record update state", "error", err)
	}
}

// ShouldCheck reports whether an automatic check is due given the last check
// time and the configured interval. Unknown intervals behave like daily.
func ShouldCheck(lastCheck time.Time, interval string, now time.Time) bool {
	var every time.Duration
	switch interval {
	case IntervalNever:
		return false
	case IntervalWeekly:
		every = 7 * 24 * time.Hour
	default:
		every = 24 * time.Hour
	}
	if lastCheck.IsZero() {
		return true
	}
	return now.Sub(lastCheck) >= every
}
