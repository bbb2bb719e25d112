package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"riskboard/domain/core"
	"riskboard/internal/config"
	"riskboard/ports"
)

// Key is the single storage key holding the current session identifier
const Key = "riskboard.session"

// StorageProvider represents different storage backends
type StorageProvider string

const (
	StorageFile   StorageProvider = "file"
	StorageSQLite StorageProvider = "sqlite"
	StorageMemory StorageProvider = "memory"
)

// Store is a CredentialStore that owns resources released by Close
type Store interface {
	ports.CredentialStore
	Provider() StorageProvider
	Close() error
}

// Open creates the store selected by configuration
func Open(cfg config.SessionConfig) (Store, error) {
	switch StorageProvider(cfg.Store) {
	case StorageFile:
		return NewFileStore(cfg.Path)
	case StorageSQLite:
		return NewSQLiteStore(cfg.Path)
	case StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store: %s", cfg.Store)
	}
}

// FileStore keeps the identifier in a small JSON document on local disk
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store, ensuring its directory exists
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Provider returns the storage provider type
func (fs *FileStore) Provider() StorageProvider {
	return StorageFile
}

// Load reads the identifier; a missing file means signed out
func (fs *FileStore) Load(ctx context.Context) (core.ID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse session file %s: %w", fs.path, err)
	}
	if doc[Key] == "" {
		return "", nil
	}
	return core.ParseID(doc[Key])
}

// Save writes the identifier through a temp file and rename so readers never see a partial write
func (fs *FileStore) Save(ctx context.Context, id core.ID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(map[string]string{Key: id.String()})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear deletes the session file
func (fs *FileStore) Clear(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}

// MemoryStore keeps the identifier for the lifetime of the process only
type MemoryStore struct {
	mu sync.Mutex
	id core.ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Provider returns the storage provider type
func (ms *MemoryStore) Provider() StorageProvider {
	return StorageMemory
}

func (ms *MemoryStore) Load(ctx context.Context) (core.ID, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.id, nil
}

func (ms *MemoryStore) Save(ctx context.Context, id core.ID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.id = id
	return nil
}

func (ms *MemoryStore) Clear(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.id = ""
	return nil
}

func (ms *MemoryStore) Close() error {
	return nil
}
