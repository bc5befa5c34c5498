package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	byTx    map[string]*Record
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byTx: make(map[string]*Record)}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := uint64(len(s.records)) + 1
	if rec.Sequence != want {
		return fmt.Errorf("sequence gap: got %d, want %d", rec.Sequence, want)
	}
	r := *rec
	s.records = append(s.records, &r)
	s.byTx[r.TransactionID] = &r
	return nil
}

func (s *MemoryStore) Last(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	r := *s.records[len(s.records)-1]
	return &r, nil
}

func (s *MemoryStore) ByTransaction(ctx context.Context, transactionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byTx[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	r := *rec
	return &r, nil
}

func (s *MemoryStore) Range(ctx context.Context, from, to uint64) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	for _, rec := range s.records {
		if rec.Sequence >= from && rec.Sequence <= to {
			r := *rec
			result = append(result, &r)
		}
	}
	return result, nil
}

func (s *MemoryStore) List(ctx context.Context, afterSeq uint64, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	for _, rec := range s.records {
		if rec.Sequence > afterSeq {
			r := *rec
			result = append(result, &r)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) LastSequence(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

// Tamper overwrites a stored record in place. Test hook for chain
// verification; not part of the Store interface.
func (s *MemoryStore) Tamper(sequence uint64, mutate func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sequence == 0 || sequence > uint64(len(s.records)) {
		return
	}
	mutate(s.records[sequence-1])
}
