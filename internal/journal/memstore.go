package journal

import (
	"context"
	"sync"
)

// MemoryStore — бэкенд журнала в памяти процесса. Для локальной разработки
// и тестов; контракт тот же: упорядоченный append-only список на ключ.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][][]byte)}
}

func (s *MemoryStore) Append(ctx context.Context, transactionID string, record []byte) error {
	cp := make([]byte, len(record))
	copy(cp, record)

	s.mu.Lock()
	s.records[transactionID] = append(s.records[transactionID], cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context, transactionID string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.records[transactionID]
	out := make([][]byte, len(stored))
	copy(out, stored)
	return out, nil
}
