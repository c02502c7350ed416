package out

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"taskmesh/internal/modules/tasks/domain"
	tasksout "taskmesh/internal/modules/tasks/port/out"
)

type FileLogStore struct {
	path string
	mu   sync.Mutex
}

func NewFileLogStore(path string) tasksout.LogStore {
	return &FileLogStore{path: path}
}

func (s *FileLogStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, nil
		}
		return domain.Snapshot{}, fmt.Errorf("read log: %w", err)
	}
	if len(raw) == 0 {
		return domain.Snapshot{}, nil
	}
	snap := domain.Snapshot{}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode log: %w", err)
	}
	return snap, nil
}

func (s *FileLogStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
