// Package store persists the two credential settings drivepurge keeps
// between runs: the OAuth client ID and a manually supplied access token.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	KeyClientID    = "drive_purge_client_id"
	KeyManualToken = "drive_purge_manual_token"
)

// Store is a small string key/value store.
type Store interface {
	Get(key string) string
	Set(key, value string) error
}

// File is a Store backed by a JSON object on disk. Every Set rewrites the file.
type File struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

// Open reads path if it exists. A missing file yields an empty store.
func Open(path string) (*File, error) {
	f := &File{path: path, values: map[string]string{}}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	if len(content) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(content, &f.values); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.values[key] == value {
		return nil
	}
	prev, had := f.values[key]
	if value == "" {
		delete(f.values, key)
	} else {
		f.values[key] = value
	}
	if err := f.flush(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) flush() error {
	content, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("write credentials %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace credentials %s: %w", f.path, err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.values, key)
		return nil
	}
	m.values[key] = value
	return nil
}
