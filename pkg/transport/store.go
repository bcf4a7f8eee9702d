package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	universal "github.com/goliatone/go-universal"
	"github.com/goliatone/go-universal/layering"
)

// ErrPassIDRequired reports a store call without a pass ID.
var ErrPassIDRequired = errors.New("transport: pass id is required")

// Store holds payloads between a server pass and the client pass that
// follows it. Take hands a payload out at most once.
type Store interface {
	Save(ctx context.Context, passID string, payload universal.Payload, ttl time.Duration) error
	Take(ctx context.Context, passID string) (universal.Payload, bool, error)
}

// MemoryStore is an in-process Store. Entries are removed when taken or once
// their TTL elapsed; a TTL of 0 means no expiry.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	payload   universal.Payload
	expiresAt time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

// Save stores a copy of payload under passID, replacing any earlier entry.
func (s *MemoryStore) Save(_ context.Context, passID string, payload universal.Payload, ttl time.Duration) error {
	if passID == "" {
		return ErrPassIDRequired
	}
	record := memoryRecord{payload: layering.Clone(payload)}
	if ttl > 0 {
		record.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.records[passID] = record
	s.mu.Unlock()
	return nil
}

// Take returns and removes the payload saved under passID.
func (s *MemoryStore) Take(_ context.Context, passID string) (universal.Payload, bool, error) {
	if passID == "" {
		return nil, false, ErrPassIDRequired
	}
	s.mu.Lock()
	record, ok := s.records[passID]
	delete(s.records, passID)
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	if !record.expiresAt.IsZero() && !s.now().Before(record.expiresAt) {
		return nil, false, nil
	}
	return record.payload, true, nil
}

// Len returns the number of entries not yet taken, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for passID, record := range s.records {
		if !record.expiresAt.IsZero() && !now.Before(record.expiresAt) {
			delete(s.records, passID)
			removed++
		}
	}
	return removed
}
