package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const stateFileName = "state.yaml"

// State records when update checks and installs last happened.
type State struct {
	LastCheck   time.Time `yaml:"lastCheck,omitempty"`
	LastUpdate  time.Time `yaml:"lastUpdate,omitempty"`
	LastVersion string    `yaml:"lastVersion,omitempty"`
}

// StateFile persists State as state.yaml next to config.yaml.
type StateFile struct {
	mu   sync.Mutex
	path string
}

// NewStateFile returns the state file inside configPath.
func NewStateFile(configPath string) *StateFile {
	return &StateFile{path: filepath.Join(configPath, stateFileName)}
}

// Path returns the state file location.
func (s *StateFile) Path() string {
	return s.path
}

// Load reads the state. A missing file yields the zero State.
func (s *StateFile) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StateFile) load() (State, error) {
	var st State
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return st, nil
}

func (s *StateFile) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		// A damaged state file only loses history.
		st = State{}
	}
	fn(&st)

	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode update state: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o600)
}

// RecordCheck stores the time of an update check.
func (s *StateFile) RecordCheck(at time.Time) error {
	return s.update(func(st *State) {
		st.LastCheck = at.UTC()
	})
}

// RecordUpdate stores the time and version of an install. An install implies
// a check.
func (s *StateFile) RecordUpdate(at time.Time, version string) error {
	return s.update(func(st *State) {
		st.LastCheck = at.UTC()
		st.LastUpdate = at.UTC()
		st.LastVersion = version
	})
}
