// Package memory provides an in-process idempotency store.
package memory

import (
	"context"
	"sync"
	"time"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// Store implements the idempotency persistence contract with a mutex-guarded
// map. State lives in the process: it is suitable for development rigs,
// tests, and single-instance deployments where records need not survive a
// restart. Use a durable backend whenever more than one instance serves
// traffic.
type Store struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
	nowFunc func() time.Time
}

var _ idempotency.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]idempotency.Record),
		nowFunc: time.Now,
	}
}

// Fetch retrieves the record for key.
func (s *Store) Fetch(ctx context.Context, key string) (idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, idempotency.ErrItemNotFound
	}
	return rec, nil
}

// InsertIfAbsentOrExpired writes the record only when the key is free or held
// by an expired record. The mutex makes the check-and-write atomic within the
// process.
func (s *Store) InsertIfAbsentOrExpired(ctx context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && !existing.Expired(s.nowFunc()) {
		return idempotency.ErrItemAlreadyExists
	}
	s.records[rec.Key] = rec
	return nil
}

// Update overwrites the record unconditionally.
func (s *Store) Update(ctx context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Key] = rec
	return nil
}

// Delete removes the record. Deleting an absent record is a no-op.
func (s *Store) Delete(ctx context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, rec.Key)
	return nil
}
