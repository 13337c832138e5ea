package store

import (
	"context"
	"sync"
	"time"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	rec      domain.Record
	attempts int
}

// MemoryStore is a single-process store. Every operation runs under one
// mutex, which makes fetch-and-delete and claim trivially atomic.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]*memoryEntry
	opts          Options
	cleanupCancel context.CancelFunc
}

// NewMemoryStore starts a background sweep of expired records every
// cleanupInterval. Expiry is also checked on every access.
func NewMemoryStore(opts Options, cleanupInterval time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		entries:       make(map[string]*memoryEntry),
		opts:          opts.withDefaults(),
		cleanupCancel: cancel,
	}
	if cleanupInterval > 0 {
		go runJanitor(ctx, cleanupInterval, s.cleanup)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, env domain.Envelope) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return domain.Record{}, transient("create", errStoreClosed)
	}
	for range maxIDAttempts {
		rec, err := s.opts.newRecord(env)
		if err != nil {
			return domain.Record{}, err
		}
		if _, taken := s.live(rec.ID); taken {
			continue
		}
		s.entries[rec.ID] = &memoryEntry{rec: rec}
		return rec, nil
	}
	return domain.Record{}, errIDCollision
}

func (s *MemoryStore) FetchAndDelete(ctx context.Context, id string) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return domain.Record{}, transient("fetch", errStoreClosed)
	}
	e, ok := s.live(id)
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	delete(s.entries, id)
	return e.rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return transient("delete", errStoreClosed)
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string, match MatchFunc) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return domain.Record{}, transient("claim", errStoreClosed)
	}
	e, ok := s.live(id)
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}

	attempts, remove, err := decideClaim(e.rec, e.attempts, s.opts.MaxAttempts, match)
	e.attempts = attempts
	if remove {
		delete(s.entries, id)
	}
	if err != nil {
		return domain.Record{}, err
	}
	return e.rec, nil
}

// Len returns the number of records held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}

// live returns the entry for id, evicting it if it has expired.
// Callers must hold s.mu.
func (s *MemoryStore) live(id string) (*memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if e.rec.Expired(s.opts.Now()) {
		delete(s.entries, id)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	for id, e := range s.entries {
		if e.rec.Expired(now) {
			delete(s.entries, id)
		}
	}
}
