package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const lockFile = "repo.lock"

// Lock acquires exclusive process-level access to the repository for the
// duration of a migration run. It returns a release function which removes
// the lock file.
//
// The lock is advisory: it protects against two kvrepo processes migrating
// the same repository, not against arbitrary writers.
func (r *Repo) Lock() (release func() error, err error) {
	path := filepath.Join(r.dir, lockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("repository is locked by another process; remove %s if that process is gone", path)
		}
		return nil, err
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	return func() error {
		return os.Remove(path)
	}, nil
}
