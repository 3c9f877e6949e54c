package updater

import (
	"path/filepath"
	"strings"

	"cco/pkg/logging"

	"github.com/google/uuid"
)

// State is a step of the install state machine.
type State int

const (
	Idle State = iota
	Verifying
	BackingUp
	Installing
	VerifyingInstall
	Done
	RolledBack
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Verifying:
		return "verifying"
	case BackingUp:
		return "backing-up"
	case Installing:
		return "installing"
	case VerifyingInstall:
		return "verifying-install"
	case Done:
		return "done"
	case RolledBack:
		return "rolled-back"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == RolledBack || s == Failed
}

// Transaction tracks one install attempt.
type Transaction struct {
	ID          string
	Version     string
	CurrentPath string
	BackupPath  string
	StagedPath  string
	LockPath    string
	State       State
	NonAtomic   bool
}

func newTransaction(livePath, targetVersion string) *Transaction {
	dir, name := filepath.Split(livePath)
	return &Transaction{
		ID:          uuid.NewString(),
		Version:     targetVersion,
		CurrentPath: livePath,
		BackupPath:  filepath.Join(dir, "."+name+".backup"),
		StagedPath:  filepath.Join(dir, "."+name+".new"),
		LockPath:    filepath.Join(dir, "."+name+".lock"),
		State:       Idle,
	}
}

// advance moves the transaction to next and records it in the audit log.
func (tx *Transaction) advance(next State) {
	prev := tx.State
	tx.State = next
	logging.Debug("Updater", "tx %s: %s -> %s", tx.ID, prev, next)
	if next.Terminal() {
		outcome := "success"
		if next != Done {
			outcome = "failure"
		}
		logging.Audit(logging.AuditEvent{
			Action:  "binary_update_" + strings.ReplaceAll(next.String(), "-", "_"),
			Outcome: outcome,
			Target:  tx.CurrentPath,
			TxID:    tx.ID,
			Detail:  "version=" + tx.Version,
		})
	}
}
