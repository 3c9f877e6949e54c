package updater

import "fmt"

// InstallErrorKind classifies failures after payload verification.
type InstallErrorKind int

const (
	// BackupFailed means the live binary could not be copied aside. Nothing
	// was changed.
	BackupFailed InstallErrorKind = iota
	// ReplaceFailed means the new binary could not be put in place.
	ReplaceFailed
	// PostInstallVerifyFailed means the new binary failed its self-check.
	PostInstallVerifyFailed
	// Locked means another update holds the install lock.
	Locked
)

func (k InstallErrorKind) String() string {
	switch k {
	case BackupFailed:
		return "backup failed"
	case ReplaceFailed:
		return "replace failed"
	case PostInstallVerifyFailed:
		return "post-install verification failed"
	case Locked:
		return "another update is in progress"
	default:
		return "install error"
	}
}

// InstallError reports a failed install transaction.
type InstallError struct {
	Kind InstallErrorKind
	// Restored is true when the previous binary was put back.
	Restored bool
	// BackupPath is set when a backup was kept for manual recovery.
	BackupPath string
	Err        error
}

func (e *InstallError) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	switch {
	case e.Restored:
		msg += " (previous version restored)"
	case e.BackupPath != "":
		msg += fmt.Sprintf(" (previous version kept at %s)", e.BackupPath)
	}
	return msg
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Is matches any *InstallError of the same kind.
func (e *InstallError) Is(target error) bool {
	t, ok := target.(*InstallError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrBackupFailed            = &InstallError{Kind: BackupFailed}
	ErrReplaceFailed           = &InstallError{Kind: ReplaceFailed}
	ErrPostInstallVerifyFailed = &InstallError{Kind: PostInstallVerifyFailed}
	ErrLocked                  = &InstallError{Kind: Locked}
)
