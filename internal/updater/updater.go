// Package updater installs a verified release over the running binary.
//
// An install is a transaction with the states
//
//	Idle -> Verifying -> BackingUp -> Installing -> VerifyingInstall -> Done
//
// and two failure ends: RolledBack when the previous binary was restored,
// and Failed when nothing was changed or restoring was impossible. The live
// binary is never touched before the payload has been verified.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cco/internal/cleanup"
	"cco/internal/download"
	"cco/internal/releases"
	"cco/internal/securefile"
	"cco/internal/version"
	"cco/pkg/logging"

	"github.com/creativeprojects/go-selfupdate"
)

const defaultLockTimeout = 5 * time.Second

// Config configures an Updater.
type Config struct {
	// TargetPath is the live binary. Defaults to the running executable.
	TargetPath string
	// CommandName is the executable name inside release archives. Defaults
	// to the base name of TargetPath.
	CommandName string
	// CurrentVersion is the version of the live binary.
	CurrentVersion string
	// KeepBackup leaves the backup in place after a successful install.
	KeepBackup bool
	// PublicKey is an optional minisign public key for release signatures.
	PublicKey string
	// LockTimeout bounds the wait for the install lock.
	LockTimeout time.Duration
}

// Request is one verified download to install.
type Request struct {
	Metadata *releases.Metadata
	Platform string
	Download *download.Result
}

// Result reports a finished install.
type Result struct {
	TxID      string
	Version   string
	State     State
	NonAtomic bool
	// BackupPath is set when the backup was kept.
	BackupPath string
	// Skipped is true when the target version was already installed.
	Skipped bool
}

// Updater runs install transactions against one binary.
type Updater struct {
	cfg      Config
	checker  SelfChecker
	replacer replacer
	logger   *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithSelfChecker replaces the default --version self-check.
func WithSelfChecker(c SelfChecker) Option {
	return func(u *Updater) {
		u.checker = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) {
		u.logger = logger
	}
}

func withReplacer(r replacer) Option {
	return func(u *Updater) {
		u.replacer = r
	}
}

// New creates an Updater.
func New(cfg Config, opts ...Option) (*Updater, error) {
	if cfg.TargetPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate running executable: %w", err)
		}
		cfg.TargetPath = exe
	}
	// Replace the real file, not a symlink pointing at it.
	if resolved, err := filepath.EvalSymlinks(cfg.TargetPath); err == nil {
		cfg.TargetPath = resolved
	}
	if cfg.CommandName == "" {
		cfg.CommandName = strings.TrimSuffix(filepath.Base(cfg.TargetPath), ".exe")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}

	u := &Updater{
		cfg:     cfg,
		checker: CommandChecker{Timeout: DefaultSelfCheckTimeout},
		logger:  logging.Logger("Updater"),
	}
	if runtime.GOOS == "windows" {
		u.replacer = applyReplacer{}
	} else {
		u.replacer = renameReplacer{}
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// TargetPath returns the binary this Updater replaces.
func (u *Updater) TargetPath() string {
	return u.cfg.TargetPath
}

// CurrentVersion returns the version of the live binary.
func (u *Updater) CurrentVersion() string {
	return u.cfg.CurrentVersion
}

// Install verifies req.Download and installs it over the live binary.
//
// The download file is removed on every path. When the target version is
// already installed nothing on disk is touched and Result.Skipped is set.
func (u *Updater) Install(ctx context.Context, req Request) (*Result, error) {
	scope := cleanup.NewScope("install")
	defer func() { _ = scope.Release() }()

	if req.Download != nil {
		scope.RemoveFile(req.Download.Path)
	}
	if req.Metadata == nil || req.Download == nil {
		return nil, errors.New("release metadata and download are required")
	}

	tx := newTransaction(u.cfg.TargetPath, req.Metadata.Version)
	result := &Result{TxID: tx.ID, Version: req.Metadata.Version}

	if u.cfg.CurrentVersion != "" && version.Same(req.Metadata.Version, u.cfg.CurrentVersion) {
		u.logger.Info("Version already installed, nothing to do", "version", req.Metadata.Version)
		result.State = Done
		result.Skipped = true
		return result, nil
	}

	entry, err := req.Metadata.Entry(req.Platform)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, u.cfg.LockTimeout)
	lk, err := securefile.Lock(lockCtx, tx.LockPath)
	cancel()
	if err != nil {
		if errors.Is(err, securefile.ErrLocked) {
			return nil, &InstallError{Kind: Locked, Err: err}
		}
		return nil, err
	}
	defer func() { _ = lk.Unlock() }()

	err = u.run(ctx, tx, entry, req.Download, scope)
	result.State = tx.State
	result.NonAtomic = tx.NonAtomic
	if tx.State == Done && u.cfg.KeepBackup {
		result.BackupPath = tx.BackupPath
	}
	return result, err
}

func (u *Updater) run(ctx context.Context, tx *Transaction, entry *releases.PlatformEntry, dl *download.Result, scope *cleanup.Scope) error {
	tx.advance(Verifying)
	if err := u.verifyPayload(entry, dl); err != nil {
		tx.advance(Failed)
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.advance(Failed)
		return err
	}

	tx.advance(BackingUp)
	info, err := os.Stat(tx.CurrentPath)
	if err != nil {
		tx.advance(Failed)
		return &InstallError{Kind: BackupFailed, Err: err}
	}
	mode := info.Mode().Perm()
	keepBackup := scope.RemoveFile(tx.BackupPath)
	if err := copyFile(tx.CurrentPath, tx.BackupPath, mode); err != nil {
		tx.advance(Failed)
		return &InstallError{Kind: BackupFailed, Err: err}
	}
	if u.cfg.KeepBackup {
		keepBackup()
	}

	tx.advance(Installing)
	scope.RemoveFile(tx.StagedPath)
	if err := u.stage(dl.Path, entry, tx.StagedPath); err != nil {
		tx.advance(Failed)
		return &InstallError{Kind: ReplaceFailed, Err: err}
	}
	// Cancellation is honoured up to here; the swap below is a single step.
	if err := ctx.Err(); err != nil {
		tx.advance(Failed)
		return err
	}
	tx.NonAtomic = !u.replacer.atomic()
	if err := u.replacer.replace(tx.StagedPath, tx.CurrentPath, 0o755); err != nil {
		return u.rollback(tx, keepBackup, &InstallError{Kind: ReplaceFailed, Err: err})
	}
	logging.Audit(logging.AuditEvent{Action: "binary_replaced", Outcome: "success", Target: tx.CurrentPath, TxID: tx.ID})

	tx.advance(VerifyingInstall)
	if err := u.checker.Check(context.WithoutCancel(ctx), tx.CurrentPath, tx.Version); err != nil {
		return u.rollback(tx, keepBackup, &InstallError{Kind: PostInstallVerifyFailed, Err: err})
	}

	tx.advance(Done)
	return nil
}

// stage extracts the executable from the payload into the staging path.
func (u *Updater) stage(payload string, entry *releases.PlatformEntry, staged string) error {
	// #nosec G304 -- payload is the verified download
	f, err := os.Open(payload)
	if err != nil {
		return err
	}
	defer f.Close()

	exe, err := selfupdate.DecompressCommand(f, entry.ArchiveName(), u.cfg.CommandName, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return fmt.Errorf("failed to extract %s from %s: %w", u.cfg.CommandName, entry.ArchiveName(), err)
	}
	if err := writeExecutable(staged, exe); err != nil {
		return fmt.Errorf("failed to write %s: %w", staged, err)
	}
	return nil
}

// rollback puts the backup back over the live path. When that fails the
// backup is kept so the user can recover by hand.
func (u *Updater) rollback(tx *Transaction, keepBackup func(), cause *InstallError) error {
	if err := os.Rename(tx.BackupPath, tx.CurrentPath); err != nil {
		keepBackup()
		cause.BackupPath = tx.BackupPath
		u.logger.Error("Failed to restore previous binary", "backup", tx.BackupPath, "error", err)
		tx.advance(Failed)
		return cause
	}
	syncDir(filepath.Dir(tx.CurrentPath))
	cause.Restored = true
	tx.advance(RolledBack)
	return cause
}
