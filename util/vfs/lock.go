// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package vfs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LockPollInterval is how often Obtain retries a lock held by someone else.
var LockPollInterval = 10 * time.Millisecond

var ErrLockTimeout = errors.New("lock obtain timed out")

// ErrLockNotOwned is returned by Unlock when the lock was taken over by another owner.
var ErrLockNotOwned = errors.New("lock is held by another owner")

// LockObtainFailedError is returned when a named lock could not be obtained before the timeout.
type LockObtainFailedError struct {
	Name    string
	Timeout time.Duration
}

func (e *LockObtainFailedError) Error() string {
	return fmt.Sprintf("lock obtain timed out after %v: %s", e.Timeout, e.Name)
}

func (e *LockObtainFailedError) Is(target error) bool {
	return target == ErrLockTimeout
}

// Lock is a named advisory lock inside a FileSystem.
type Lock interface {
	Name() string

	// TryLock attempts to obtain the lock without waiting.
	TryLock() (bool, error)

	// Unlock releases the lock. Releasing a lock that is not held is not an error,
	// releasing a lock that was taken over by another owner fails with ErrLockNotOwned
	// and leaves the lock in place.
	Unlock() error

	// IsLocked reports whether anybody holds the lock.
	IsLocked() bool
}

// Obtain tries to get the lock, polling until the timeout expires.
func Obtain(lock Lock, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "failed to obtain lock %s", lock.Name())
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &LockObtainFailedError{Name: lock.Name(), Timeout: timeout}
		}
		time.Sleep(LockPollInterval)
	}
}

// With runs fn while holding the lock.
func With(lock Lock, timeout time.Duration, fn func() error) error {
	err := Obtain(lock, timeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}

type fsLock struct {
	name  string
	path  string
	owner string
}

func (l *fsLock) Name() string {
	return l.name
}

func (l *fsLock) TryLock() (bool, error) {
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()
	l.owner = uuid.New().String()
	_, err = fmt.Fprintf(file, "%s %d\n", l.owner, os.Getpid())
	if err != nil {
		os.Remove(l.path)
		return false, err
	}
	return true, nil
}

// lockOwner returns the owner token written into a lock file.
func lockOwner(data []byte) string {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (l *fsLock) Unlock() error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read lock %s", l.name)
	}
	if lockOwner(data) != owner {
		return errors.Wrapf(ErrLockNotOwned, "lock %s", l.name)
	}
	err = os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *fsLock) IsLocked() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

type memLock struct {
	dir   *memDir
	name  string
	owner string
}

func (l *memLock) Name() string {
	return l.name
}

func (l *memLock) TryLock() (bool, error) {
	l.dir.mu.Lock()
	defer l.dir.mu.Unlock()
	if _, locked := l.dir.locks[l.name]; locked {
		return false, nil
	}
	l.owner = uuid.New().String()
	l.dir.locks[l.name] = l.owner
	return true, nil
}

func (l *memLock) Unlock() error {
	l.dir.mu.Lock()
	defer l.dir.mu.Unlock()
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	current, locked := l.dir.locks[l.name]
	if !locked {
		return nil
	}
	if current != owner {
		return errors.Wrapf(ErrLockNotOwned, "lock %s", l.name)
	}
	delete(l.dir.locks, l.name)
	return nil
}

func (l *memLock) IsLocked() bool {
	l.dir.mu.RLock()
	defer l.dir.mu.RUnlock()
	_, locked := l.dir.locks[l.name]
	return locked
}
