package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
)

// FileModelStore writes the latest snapshot to a single JSON file, via a temp file renamed
// over the old one.
type FileModelStore struct {
	mu   sync.Mutex
	path string
}

func NewFileModelStore(path string) *FileModelStore {
	return &FileModelStore{path: path}
}

func (s *FileModelStore) SaveModel(_ context.Context, snap domrepo.ModelSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace model file: %w", err)
	}
	return nil
}

func (s *FileModelStore) LoadModel(context.Context) (domrepo.ModelSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domrepo.ModelSnapshot{}, fmt.Errorf("model file %s: %w", s.path, models.ErrNotFound)
	}
	if err != nil {
		return domrepo.ModelSnapshot{}, fmt.Errorf("read model file: %w", err)
	}
	var snap domrepo.ModelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domrepo.ModelSnapshot{}, fmt.Errorf("decode model file: %w", err)
	}
	return snap, nil
}

// MemoryModelStore keeps the snapshot in process; it does not survive restarts.
type MemoryModelStore struct {
	mu   sync.Mutex
	snap *domrepo.ModelSnapshot
}

func NewMemoryModelStore() *MemoryModelStore { return &MemoryModelStore{} }

func (s *MemoryModelStore) SaveModel(_ context.Context, snap domrepo.ModelSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Payload = append([]byte(nil), snap.Payload...)
	s.snap = &snap
	return nil
}

func (s *MemoryModelStore) LoadModel(context.Context) (domrepo.ModelSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return domrepo.ModelSnapshot{}, fmt.Errorf("model snapshot: %w", models.ErrNotFound)
	}
	return *s.snap, nil
}

var (
	_ domrepo.ModelStore = (*FileModelStore)(nil)
	_ domrepo.ModelStore = (*MemoryModelStore)(nil)
)
