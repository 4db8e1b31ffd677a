// Package lockfile implements an advisory lock for document files. A
// lock on "plan.xml" is the existence of "plan.xml.lock"; acquisition
// creates it exclusively and polls until a timeout.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout indicates the lock could not be acquired in time.
var ErrTimeout = errors.New("lock timeout")

const (
	// DefaultTimeout bounds how long Acquire waits.
	DefaultTimeout = 5 * time.Second

	// PollInterval is the delay between acquisition attempts.
	PollInterval = 100 * time.Millisecond

	// StaleThreshold is the age past which an existing lock is presumed
	// abandoned and removed before the first attempt.
	StaleThreshold = 5 * time.Minute
)

// Lock is a held advisory lock.
type Lock struct {
	path string
}

// LockPath returns the lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// IsLocked reports whether a lock file currently exists for path.
func IsLocked(path string) bool {
	_, err := os.Stat(LockPath(path))
	return err == nil
}

// Acquire takes the lock for path, polling until timeout. A stale lock is
// swept once before the first attempt; two waiters racing the sweep can
// both remove it and both recreate.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	lockPath := LockPath(path)

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > StaleThreshold {
			os.Remove(lockPath)
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return &Lock{path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		time.Sleep(PollInterval)
	}
}

// Release removes the lock file. Releasing an already-removed lock is not
// an error.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
