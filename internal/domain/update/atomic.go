package update

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// createTemp opens a scratch file next to target so the final rename stays
// on one filesystem.
func createTemp(target string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file for %s: %w", target, err)
	}
	return f, nil
}

// commit fsyncs tmp, renames it onto target and syncs the parent directory.
// tmp is closed and, on failure, removed.
func commit(tmp *os.File, target string, perm fs.FileMode) error {
	name := tmp.Name()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("setting mode on %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return fmt.Errorf("renaming %s into place: %w", target, err)
	}

	if dir, err := os.Open(filepath.Dir(target)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// discard closes and removes an abandoned temporary file.
func discard(tmp *os.File) {
	tmp.Close()
	os.Remove(tmp.Name())
}
