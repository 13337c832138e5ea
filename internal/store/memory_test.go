package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallwat3r/secretlink/internal/domain"
)

func newMemoryHarness(t *testing.T, opts Options) harness {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	s := NewMemoryStore(opts, 0)
	t.Cleanup(func() { s.Close() })
	return harness{store: s, advance: clock.Advance}
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, newMemoryHarness)
}

func TestMemoryStore_CleanupEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(Options{TTL: time.Minute, Now: clock.Now}, 0)
	defer s.Close()

	for range 3 {
		if _, err := s.Create(context.Background(), domain.Envelope{Ciphertext: "v1:x"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	clock.Advance(2 * time.Minute)
	s.cleanup()

	if n := s.Len(); n != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", n)
	}
}

func TestMemoryStore_ClosedIsTransient(t *testing.T) {
	s := NewMemoryStore(Options{}, time.Minute)
	s.Close()

	ctx := context.Background()
	if _, err := s.Create(ctx, domain.Envelope{Ciphertext: "v1:x"}); !errors.Is(err, domain.ErrTransient) {
		t.Errorf("Create() on closed store error = %v, want ErrTransient", err)
	}
	_, err := s.FetchAndDelete(ctx, "abc123xyz789")
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("FetchAndDelete() on closed store error = %v, want ErrTransient", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Error("transient failure must not look like not found")
	}
}

func TestMemoryStore_CollisionRetry(t *testing.T) {
	ids := []string{"sameidsameid", "sameidsameid", "otheridother"}
	next := 0
	s := NewMemoryStore(Options{NewID: func() (string, error) {
		id := ids[next]
		next++
		return id, nil
	}}, 0)
	defer s.Close()

	ctx := context.Background()
	first, err := s.Create(ctx, domain.Envelope{Ciphertext: "v1:a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := s.Create(ctx, domain.Envelope{Ciphertext: "v1:b"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("colliding id %q reused", first.ID)
	}
}
