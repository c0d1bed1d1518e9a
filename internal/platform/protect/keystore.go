// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// # File Repository

const keyFilePrefix = "key-"

// FileKeyRepository stores one JSON document per key in a directory.
//
// Files are written with mode 0600 through a temp file and rename, so a
// crashed write never leaves a half-written key behind.
type FileKeyRepository struct {
	dir string
}

// NewFileKeyRepository creates the directory if needed and returns the repository.
func NewFileKeyRepository(dir string) (*FileKeyRepository, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("protect: failed to create key directory: %w", err)
	}
	return &FileKeyRepository{dir: dir}, nil
}

// LoadAll reads every key file in the directory.
func (repository *FileKeyRepository) LoadAll(_ context.Context) ([]Key, error) {
	entries, err := os.ReadDir(repository.dir)
	if err != nil {
		return nil, fmt.Errorf("protect: failed to list key directory: %w", err)
	}

	var keys []Key
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, keyFilePrefix) || filepath.Ext(name) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(repository.dir, name))
		if err != nil {
			return nil, fmt.Errorf("protect: failed to read %s: %w", name, err)
		}

		var key Key
		if err := json.Unmarshal(data, &key); err != nil {
			return nil, fmt.Errorf("protect: failed to decode %s: %w", name, err)
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Store writes (or overwrites) the file for a key.
func (repository *FileKeyRepository) Store(_ context.Context, key Key) error {
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("protect: failed to encode key: %w", err)
	}

	target := filepath.Join(repository.dir, keyFilePrefix+key.ID.String()+".json")

	temp, err := os.CreateTemp(repository.dir, ".tmp-key-*")
	if err != nil {
		return fmt.Errorf("protect: failed to create temp file: %w", err)
	}
	tempName := temp.Name()

	writeErr := errors.Join(temp.Chmod(0o600), writeAll(temp, data), temp.Sync(), temp.Close())
	if writeErr != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("protect: failed to write key: %w", writeErr)
	}

	if err := os.Rename(tempName, target); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("protect: failed to install key file: %w", err)
	}

	return nil
}

func writeAll(file *os.File, data []byte) error {
	_, err := file.Write(data)
	return err
}

// # Memory Repository

// MemoryKeyRepository keeps keys in process memory. Used by tests and by
// single-instance development runs without a key directory.
type MemoryKeyRepository struct {
	mu   sync.Mutex
	keys map[string]Key
}

// NewMemoryKeyRepository returns an empty repository.
func NewMemoryKeyRepository() *MemoryKeyRepository {
	return &MemoryKeyRepository{keys: make(map[string]Key)}
}

// LoadAll returns a copy of every stored key.
func (repository *MemoryKeyRepository) LoadAll(_ context.Context) ([]Key, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	keys := make([]Key, 0, len(repository.keys))
	for _, key := range repository.keys {
		keys = append(keys, key)
	}
	return keys, nil
}

// Store saves a key.
func (repository *MemoryKeyRepository) Store(_ context.Context, key Key) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	repository.keys[key.ID.String()] = key
	return nil
}
