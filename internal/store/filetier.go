package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"zm-cli/internal/errs"
)

// FileTier stores key-value pairs as a 0600 JSON file. Writes go
// through a lock file plus atomic rename so concurrent processes
// cannot interleave partial writes.
type FileTier struct {
	path string
}

func NewFileTier(path string) *FileTier {
	return &FileTier{path: path}
}

func (t *FileTier) Write(key, value string) error {
	lock, err := acquireLock(t.path)
	if err != nil {
		return &errs.StorageError{Op: "write", Key: key, Err: err}
	}
	defer lock.release()

	m, err := t.load()
	if err != nil {
		return &errs.StorageError{Op: "write", Key: key, Err: err}
	}
	m[key] = value
	if err := t.save(m); err != nil {
		return &errs.StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (t *FileTier) Read(key string) (string, bool, error) {
	m, err := t.load()
	if err != nil {
		return "", false, &errs.StorageError{Op: "read", Key: key, Err: err}
	}
	v, ok := m[key]
	return v, ok, nil
}

func (t *FileTier) Delete(key string) error {
	lock, err := acquireLock(t.path)
	if err != nil {
		return &errs.StorageError{Op: "delete", Key: key, Err: err}
	}
	defer lock.release()

	m, err := t.load()
	if err != nil {
		return &errs.StorageError{Op: "delete", Key: key, Err: err}
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	if err := t.save(m); err != nil {
		return &errs.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (t *FileTier) load() (map[string]string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt secrets file %s: %w", t.path, err)
	}
	return m, nil
}

func (t *FileTier) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first, then rename over the target, so a
	// crash mid-write never leaves a truncated secrets file.
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, t.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// fileLock coordinates access across processes with an exclusively
// created lock file.
type fileLock struct {
	path string
}

func acquireLock(target string) (*fileLock, error) {
	lockPath := target + ".lock"
	const maxRetries = 50
	const retryDelay = 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			f.Close()
			return &fileLock{path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		// Lock held by someone else. Break stale locks older than 30s
		// (a crashed process never released).
		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > 30*time.Second {
				if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
					return nil, remErr
				}
				continue
			}
		}
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("timeout waiting for lock on %s", lockPath)
}

func (l *fileLock) release() {
	os.Remove(l.path)
}
