package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps records in an expirable LRU.
// When MaxEntries is reached the least recently used record is dropped early,
// which callers observe the same way as expiry.
type MemoryStore struct {
	records *expirable.LRU[string, Record]
	ttl     time.Duration
	mu      sync.Mutex
	stopped bool
}

// NewMemoryStore creates an in-memory store. maxEntries <= 0 means unbounded.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &MemoryStore{
		records: expirable.NewLRU[string, Record](maxEntries, nil, ttl),
		ttl:     ttl,
	}
}

// TTL returns the retention window.
func (s *MemoryStore) TTL() time.Duration {
	return s.ttl
}

// Put stores a copy of rec.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.records.Add(rec.Handle, cloneRecord(rec))
	return nil
}

// Get retrieves a record if it exists and hasn't expired.
func (s *MemoryStore) Get(_ context.Context, handle string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Record{}, false, nil
	}
	rec, ok := s.records.Get(handle)
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Len()
}

// Close drops all records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		s.records.Purge()
	}
	return nil
}

func cloneRecord(rec Record) Record {
	out := rec
	if rec.Result != nil {
		out.Result = append([]byte(nil), rec.Result...)
	}
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		out.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
