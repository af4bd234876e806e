// Package dotdir resolves the .swarm/ directory holding config.toml and the
// default SQLite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the swarm directory.
	dirName = ".swarm"

	// DatabaseFile is the default SQLite database inside the directory.
	DatabaseFile = "swarm.db"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .swarm/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.swarm/ dir
//  3. Home ~/.swarm/ dir, created when missing
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
		return "", fmt.Errorf("creating swarm directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// DatabasePath returns configured when set, otherwise the default database
// inside the resolved directory.
func (m *Manager) DatabasePath(overrideDir, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DatabaseFile), nil
}

// localDirExists checks whether a .swarm/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
