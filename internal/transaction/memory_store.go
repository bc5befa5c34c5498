package transaction

import (
	"context"
	"sync"
	"time"
)

// MemoryHistoryStore keeps sliding windows in memory, one per account.
type MemoryHistoryStore struct {
	windows sync.Map // map[string]*accountWindow
}

type accountWindow struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

// NewMemoryHistoryStore creates an in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{}
}

func (s *MemoryHistoryStore) Append(ctx context.Context, accountID string, entry HistoryEntry) error {
	w := s.getWindow(accountID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, entry)
	pruneWindow(&w.entries, entry.Timestamp)
	return nil
}

func (s *MemoryHistoryStore) Window(ctx context.Context, accountID string, now time.Time) ([]HistoryEntry, error) {
	v, ok := s.windows.Load(accountID)
	if !ok {
		return nil, nil
	}
	w := v.(*accountWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-WindowDuration)
	result := make([]HistoryEntry, 0, len(w.entries))
	for _, e := range w.entries {
		if e.Timestamp.After(cutoff) {
			result = append(result, e)
		}
	}
	if len(result) == 0 {
		return nil, nil
	}
	if len(result) > MaxWindowSize {
		result = result[len(result)-MaxWindowSize:]
	}
	return result, nil
}

func (s *MemoryHistoryStore) getWindow(accountID string) *accountWindow {
	v, _ := s.windows.LoadOrStore(accountID, &accountWindow{})
	return v.(*accountWindow)
}

// pruneWindow drops entries older than WindowDuration and caps the slice.
func pruneWindow(entries *[]HistoryEntry, now time.Time) {
	cutoff := now.Add(-WindowDuration)
	start := 0
	for start < len(*entries) && (*entries)[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		*entries = (*entries)[start:]
	}
	if len(*entries) > MaxWindowSize {
		*entries = (*entries)[len(*entries)-MaxWindowSize:]
	}
}
