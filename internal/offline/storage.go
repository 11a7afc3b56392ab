package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/artbid/auction-engine/internal/model"
)

// FileStore persists the pending set as a JSON file, written atomically
// via a temp file and rename, so a crash mid-save never corrupts the set.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed pending store at path. Parent
// directories are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]model.QueuedBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending bids: %w", err)
	}

	var bids []model.QueuedBid
	if err := json.Unmarshal(data, &bids); err != nil {
		return nil, fmt.Errorf("parse pending bids: %w", err)
	}
	return bids, nil
}

func (s *FileStore) Save(bids []model.QueuedBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	data, err := json.Marshal(bids)
	if err != nil {
		return fmt.Errorf("encode pending bids: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write pending bids: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit pending bids: %w", err)
	}
	return nil
}

// MemoryPendingStore is an in-memory PendingStore for tests.
type MemoryPendingStore struct {
	mu   sync.Mutex
	bids []model.QueuedBid
}

// NewMemoryPendingStore creates an empty in-memory pending store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{}
}

func (s *MemoryPendingStore) Load() ([]model.QueuedBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.QueuedBid, len(s.bids))
	copy(out, s.bids)
	return out, nil
}

func (s *MemoryPendingStore) Save(bids []model.QueuedBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bids = make([]model.QueuedBid, len(bids))
	copy(s.bids, bids)
	return nil
}
