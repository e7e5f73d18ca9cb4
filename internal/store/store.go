// Package store keeps small local state for the dashboard: UI preferences
// and the last active view. Entity data is never persisted here; the backend
// owns it.
package store

import (
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	Dir string
}

// ConfigDir is ~/.valter unless VALTER_CONFIG_DIR overrides it.
func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.valter).
	if v := strings.TrimSpace(os.Getenv("VALTER_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".valter"), nil
}

// Open returns the store rooted at ConfigDir.
func Open() (Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Store{}, err
	}
	return Store{Dir: dir}, nil
}

func (s Store) Ensure() error {
	return os.MkdirAll(s.Dir, 0o755)
}

// LogPath is the default log file for interactive sessions.
func (s Store) LogPath() string {
	return filepath.Join(s.Dir, "valter.log")
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}
