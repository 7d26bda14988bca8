// Package dotdir manages the .stasis/ and ~/.stasis directories.
//
// The dot directory holds everything stasis persists on disk: the TOML
// configuration, the live-session table, per-model server logs, the slot
// action journal, and the llamacpp/dumps/ directory where conversation dumps
// and their paired KV-cache blobs live.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the stasis directory.
	dirName = ".stasis"

	// dumpsSubdir is where conversation dumps and KV-cache blobs are kept,
	// relative to the dot directory. The llamacpp/ segment leaves room for
	// other engine backends later.
	dumpsSubdir = "llamacpp/dumps"

	// logsSubdir holds per-model server log files.
	logsSubdir = "logs"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .stasis/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.stasis/ dir
//  3. Home ~/.stasis/ dir
//  4. If none found, attempt to create ~/.stasis/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating stasis directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// DumpsDir resolves the conversation dump directory under the dot directory.
// The directory itself is not created here; the dump store creates it on the
// first save so that listing an untouched install stays an empty read.
func (m *Manager) DumpsDir(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(dumpsSubdir)), nil
}

// LogsDir resolves (and creates) the server log directory.
func (m *Manager) LogsDir(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	logs := filepath.Join(dir, logsSubdir)
	if err := os.MkdirAll(logs, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory %s: %w", logs, err)
	}
	return logs, nil
}

// localDirExists checks whether a .stasis/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
