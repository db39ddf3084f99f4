package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-git/v5/storage/filesystem"
)

const lockFile = "checkin.lock"

// ErrLocked indicates another checkin holds the workspace lock
var ErrLocked = errors.New("workspace is locked by another checkin")

// Lock is a held workspace lock.
type Lock struct {
	path string
}

// Lock takes the workspace checkin lock so at most one checkin runs per
// working copy. The lock file lives in the git directory.
func (w *Workspace) Lock() (*Lock, error) {
	p := filepath.Join(w.gitDir(), lockFile)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, p)
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(p)
		return nil, fmt.Errorf("write lock: %w", errors.Join(werr, cerr))
	}
	return &Lock{path: p}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Workspace) gitDir() string {
	if s, ok := w.repo.Storer.(*filesystem.Storage); ok {
		return s.Filesystem().Root()
	}
	return filepath.Join(w.root, ".git")
}
