// Package cleanup collects release actions for resources acquired during an
// operation and runs them on every exit path.
//
//	scope := cleanup.NewScope("update")
//	defer scope.Release()
//	scope.RemoveFile(tmp)
//	keep := scope.RemoveFile(backup)
//	...
//	keep() // backup survives Release
package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"cco/pkg/logging"
)

// Scope runs registered release actions in reverse order of registration.
// It is safe for concurrent use and Release is idempotent.
type Scope struct {
	name string

	mu       sync.Mutex
	actions  []*action
	released bool
}

type action struct {
	desc      string
	fn        func() error
	dismissed bool
}

// NewScope creates an empty scope. name tags log records.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Add registers fn and returns a function that dismisses it. A dismissed
// action is skipped by Release.
func (s *Scope) Add(desc string, fn func() error) (dismiss func()) {
	a := &action{desc: desc, fn: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		// Too late to defer; release immediately.
		if err := fn(); err != nil {
			logging.Warn("Cleanup", "%s: %s failed: %v", s.name, desc, err)
		}
		return func() {}
	}
	s.actions = append(s.actions, a)

	return func() {
		s.mu.Lock()
		a.dismissed = true
		s.mu.Unlock()
	}
}

// RemoveFile registers removal of path. A file that is already gone is not
// an error.
func (s *Scope) RemoveFile(path string) (dismiss func()) {
	return s.Add("remove "+path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// Release runs every action that was not dismissed, newest first. All
// actions run even when some fail; the failures are joined.
func (s *Scope) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if a.dismissed {
			continue
		}
		if err := a.fn(); err != nil {
			logging.Warn("Cleanup", "%s: %s failed: %v", s.name, a.desc, err)
			errs = append(errs, fmt.Errorf("%s: %w", a.desc, err))
		}
	}
	return errors.Join(errs...)
}
