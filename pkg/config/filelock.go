package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout is returned when a lock could not be taken in time
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// staleLockAge is how old a lock file must be before its owner is checked
const staleLockAge = 2 * time.Minute

// FileLock serialises writers of a file across processes with a sibling
// ".lock" file held under flock
type FileLock struct {
	path     string
	lockPath string
	file     *os.File
}

// LockConfig controls how long Lock waits
type LockConfig struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:    5 * time.Second,
		RetryDelay: 50 * time.Millisecond,
	}
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, lockPath: path + ".lock"}
}

// Lock blocks until the lock is held or cfg.Timeout passes
func (fl *FileLock) Lock(cfg LockConfig) error {
	if fl.file != nil {
		return fmt.Errorf("%s is already locked", fl.path)
	}
	if err := os.MkdirAll(filepath.Dir(fl.lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		err := fl.tryLock()
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return err
		}
		if fl.stale() {
			os.Remove(fl.lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, fl.path)
		}
		time.Sleep(cfg.RetryDelay)
	}
}

func (fl *FileLock) tryLock() error {
	file, err := os.OpenFile(fl.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		os.Remove(fl.lockPath)
		return fmt.Errorf("failed to flock %s: %w", fl.lockPath, err)
	}

	fmt.Fprintf(file, "pid:%d\n", os.Getpid())
	fl.file = file
	return nil
}

// stale reports whether an old lock file belongs to a process that is gone
func (fl *FileLock) stale() bool {
	info, err := os.Stat(fl.lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) < staleLockAge {
		return false
	}

	data, err := os.ReadFile(fl.lockPath)
	if err != nil {
		return true
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "pid:%d", &pid); err != nil {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	return process.Signal(syscall.Signal(0)) != nil
}

func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	var errs []error
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("failed to release flock: %w", err))
	}
	if err := fl.file.Close(); err != nil {
		errs = append(errs, err)
	}
	fl.file = nil
	if err := os.Remove(fl.lockPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (fl *FileLock) IsLocked() bool {
	return fl.file != nil
}

// WithLock runs fn while holding the lock for path
func WithLock(path string, cfg LockConfig, fn func() error) error {
	lock := NewFileLock(path)
	if err := lock.Lock(cfg); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to unlock %s: %v\n", path, err)
		}
	}()
	return fn()
}

// writeAtomic replaces path with data through a temporary file
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
