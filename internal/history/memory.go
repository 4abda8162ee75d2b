package history

import (
	"context"
	"sync"

	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// MemoryStore is a process-local HistoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]models.SwapHistoryEntry
}

var _ storage.HistoryStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]models.SwapHistoryEntry)}
}

func (s *MemoryStore) Add(_ context.Context, wallet string, entry models.SwapHistoryEntry) error {
	if err := validate(wallet, &entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]models.SwapHistoryEntry{entry}, s.entries[wallet]...)
	if len(list) > Capacity {
		list = list[:Capacity]
	}
	s.entries[wallet] = list
	return nil
}

func (s *MemoryStore) List(_ context.Context, wallet string) ([]models.SwapHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SwapHistoryEntry, len(s.entries[wallet]))
	copy(out, s.entries[wallet])
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, wallet, txID string, status models.SwapStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries[wallet] {
		if s.entries[wallet][i].TxID == txID {
			s.entries[wallet][i].Status = status
			return nil
		}
	}
	return storage.ErrNotFound
}
