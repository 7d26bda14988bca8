// Package session tracks which llama-server process serves which model.
//
// The registry is the runtime's single source of truth: at most one session
// exists per model id, and a session is only as real as its process. Every
// lookup re-reads the on-disk table and prunes entries whose process has
// exited, so callers never act on a descriptor for a dead or replaced server.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stasishq/stasis/pkg/dotdir"
	"github.com/stasishq/stasis/pkg/proc"
)

const (
	stateFileName = "sessions.json"
	lockFileName  = "sessions.lock"
	stateVersion  = 1
)

// Descriptor describes one running llama-server instance.
type Descriptor struct {
	SessionID  string    `json:"session_id"`
	ModelID    string    `json:"model_id"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	APIKey     string    `json:"api_key"`
	Args       []string  `json:"args,omitempty"`
	ModelPath  string    `json:"model_path,omitempty"`
	MMProjPath string    `json:"mmproj_path,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// State is the persisted session table.
type State struct {
	Version   int          `json:"version"`
	Sessions  []Descriptor `json:"sessions"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Registry persists the session table to <dotdir>/sessions.json under an
// exclusive flock. It holds no in-memory copy between calls.
type Registry struct {
	Dir       string
	StatePath string
	LockPath  string

	// alive is the process liveness check, injectable for tests.
	alive func(pid int) bool
}

type Lock struct {
	file *os.File
}

func NewRegistry(configDir string) (*Registry, error) {
	manager := dotdir.NewManager()
	dir, err := manager.Target(configDir)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Dir:       dir,
		StatePath: filepath.Join(dir, stateFileName),
		LockPath:  filepath.Join(dir, lockFileName),
		alive:     proc.Alive,
	}, nil
}

// SetAliveFunc overrides the process liveness check. Tests use this to
// simulate dead processes without spawning any.
func (r *Registry) SetAliveFunc(alive func(pid int) bool) {
	r.alive = alive
}

func (r *Registry) Lock() (*Lock, error) {
	file, err := os.OpenFile(r.LockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening session lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("locking session file: %w", err)
	}

	return &Lock{file: file}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking session file: %w", err)
	}
	return l.file.Close()
}

// FindByModel returns the live session for the given model id, or nil if no
// server currently serves it. Dead sessions discovered along the way are
// pruned from the table so later reads stay truthful.
func (r *Registry) FindByModel(modelID string) (*Descriptor, error) {
	sessions, err := r.List()
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].ModelID == modelID {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// List returns all live sessions, pruning dead entries from the state file.
func (r *Registry) List() ([]Descriptor, error) {
	lock, err := r.Lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	state, err := r.loadState()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	live := make([]Descriptor, 0, len(state.Sessions))
	for _, sess := range state.Sessions {
		if r.alive(sess.PID) {
			live = append(live, sess)
		}
	}

	if len(live) != len(state.Sessions) {
		state.Sessions = live
		if err := r.saveState(state); err != nil {
			return nil, err
		}
	}

	return live, nil
}

// Register records a new session for desc.ModelID, replacing any existing
// entry for that model. One session per model, always.
func (r *Registry) Register(desc Descriptor) error {
	lock, err := r.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	state, err := r.loadState()
	if err != nil {
		return err
	}
	if state == nil {
		state = &State{}
	}

	kept := make([]Descriptor, 0, len(state.Sessions)+1)
	for _, sess := range state.Sessions {
		if sess.ModelID != desc.ModelID {
			kept = append(kept, sess)
		}
	}
	state.Sessions = append(kept, desc)

	return r.saveState(state)
}

// Unregister removes the session with the given pid, if present.
func (r *Registry) Unregister(pid int) error {
	lock, err := r.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	state, err := r.loadState()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	kept := make([]Descriptor, 0, len(state.Sessions))
	for _, sess := range state.Sessions {
		if sess.PID != pid {
			kept = append(kept, sess)
		}
	}
	state.Sessions = kept

	return r.saveState(state)
}

func (r *Registry) loadState() (*State, error) {
	data, err := os.ReadFile(r.StatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}

	return state, nil
}

func (r *Registry) saveState(state *State) error {
	if state.Version == 0 {
		state.Version = stateVersion
	}
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	tmpFile, err := os.CreateTemp(r.Dir, "sessions-*.json")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}

	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp session file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp session file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), r.StatePath); err != nil {
		return fmt.Errorf("persisting session file: %w", err)
	}

	return nil
}
