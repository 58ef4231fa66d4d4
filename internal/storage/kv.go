// Package storage provides the durable key-value backends knc persists
// through, and the operator settings store built on top of them.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
)

// KVStore is a durable string key-value store. Set replaces the whole value
// for a key in one step; readers never observe a partial write.
type KVStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Close() error
}

// ErrInvalidKey is returned for keys that are not safe to use as file names
// or prefixed remote keys.
var ErrInvalidKey = errors.New("invalid storage key")

var validKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateKey checks that key is usable by every backend.
func ValidateKey(key string) error {
	if !validKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// tempFilePrefix marks in-flight atomic writes in the data directory.
const tempFilePrefix = ".knc-tmp-"

type fileKVStore struct {
	dir string
}

// NewFileKVStore creates a KVStore keeping one file per key under dir.
func NewFileKVStore(dir string) KVStore {
	return &fileKVStore{dir: dir}
}

func (s *fileKVStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *fileKVStore) Get(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *fileKVStore) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := writeFileAtomic(s.path(key), []byte(value), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *fileKVStore) Close() error { return nil }

// lock takes an exclusive advisory lock on the directory's lock file so
// concurrent knc processes serialize their writes.
func (s *fileKVStore) lock() (unlock func() error, err error) {
	f, err := os.OpenFile(filepath.Join(s.dir, ".lock"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening storage lock file: %w", err)
	}

	// syscall.Flock is Unix-specific.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring storage lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, and renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", filename, err)
	}
	return nil
}
