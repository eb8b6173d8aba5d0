package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"chatcore/internal/types"
)

// IdentityStore persists the durable conversation identity across reloads.
type IdentityStore interface {
	Load(ctx context.Context) (types.Identity, error)
	Save(ctx context.Context, id types.Identity) error
}

type FileIdentityStore struct {
	path string
	mu   sync.Mutex
}

func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

func (s *FileIdentityStore) Load(ctx context.Context) (types.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id types.Identity
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
		return id, err
	}
	if len(data) == 0 {
		return id, nil
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return types.Identity{}, err
	}
	return id, nil
}

func (s *FileIdentityStore) Save(ctx context.Context, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, id)
}

// writeFileAtomic writes JSON via a temp file and rename so a crash mid-write
// never leaves a truncated identity record behind.
func writeFileAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	file, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(file.Name())
	}()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}
