// Package localstore keeps small device-local values such as the reset
// marker and the session token. Values never leave the machine.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/keyring"
	"github.com/julianstephens/routineo/internal/logger"
)

// Store is a string key-value store scoped to this device.
type Store interface {
	// GetItem returns the stored value and whether it exists.
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
}

// Open returns the store for backend. "auto" uses the OS keyring when it
// is reachable and falls back to a JSON file in dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case constants.LocalStoreKeyring:
		if !keyring.IsAvailable() {
			return nil, keyring.ErrKeyringUnavailable
		}
		return KeyringStore{}, nil
	case constants.LocalStoreFile:
		return NewFileStore(filepath.Join(dir, constants.LocalStoreFileName)), nil
	case constants.LocalStoreAuto, "":
		if keyring.IsAvailable() {
			return KeyringStore{}, nil
		}
		logger.Info("OS keyring unavailable, using file-backed local store", "dir", dir)
		return NewFileStore(filepath.Join(dir, constants.LocalStoreFileName)), nil
	default:
		return nil, fmt.Errorf("unknown local store backend %q (want %s, %s or %s)",
			backend, constants.LocalStoreAuto, constants.LocalStoreKeyring, constants.LocalStoreFile)
	}
}

// KeyringStore keeps values in the OS keyring.
type KeyringStore struct{}

func (KeyringStore) GetItem(key string) (string, bool, error) {
	v, err := keyring.Get(key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (KeyringStore) SetItem(key, value string) error {
	return keyring.Set(key, value)
}

func (KeyringStore) RemoveItem(key string) error {
	if err := keyring.Delete(key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// FileStore keeps values in a JSON object on disk. The file is rewritten
// atomically on every change and re-read on every access so separate
// processes see each other's writes.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse local store %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create local store directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".local-*.json")
	if err != nil {
		return fmt.Errorf("failed to write local store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write local store: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *FileStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.write(values)
}

// MemoryStore is an in-process store for tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
