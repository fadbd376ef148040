package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DirName is the name of the dtsm data directory.
const DirName = ".dtsm"

// GlobalPath returns the path to the global .dtsm directory.
// On Unix: ~/.dtsm
// On Windows: %USERPROFILE%\.dtsm
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// LocalPath returns the path to the local .dtsm directory for the given
// project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()[:8]
}
