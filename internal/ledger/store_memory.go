package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps the chain in process memory. Used by tests and by
// dry-run scans that do not need durable audit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Range(_ context.Context, fromSeq, toSeq uint64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.Seq < fromSeq {
			continue
		}
		if toSeq != 0 && e.Seq > toSeq {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) Last(_ context.Context) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false, nil
	}
	return s.entries[len(s.entries)-1], true, nil
}

// Tamper overwrites a stored entry in place. Test hook for integrity checks.
func (s *MemoryStore) Tamper(seq uint64, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Seq == seq {
			mutate(&s.entries[i])
			return
		}
	}
}
