package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// harness wraps a backend under test with a way to move its clock.
type harness struct {
	store   Store
	advance func(d time.Duration)
}

type factory func(t *testing.T, opts Options) harness

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fixedID(id string) func() (string, error) {
	return func() (string, error) { return id, nil }
}

func matchPassword(password string) MatchFunc {
	return func(verifier string) bool { return verifier == "hash:"+password }
}

func protectedEnvelope(password string) domain.Envelope {
	return domain.Envelope{Ciphertext: "v1:cipher", PasswordVerifier: "hash:" + password}
}

func runStoreSuite(t *testing.T, newHarness factory) {
	ctx := context.Background()

	t.Run("create then fetch once", func(t *testing.T) {
		h := newHarness(t, Options{NewID: fixedID("abc123xyz789")})

		rec, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:launch-codes"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if rec.ID != "abc123xyz789" {
			t.Fatalf("Create() id = %q, want abc123xyz789", rec.ID)
		}
		if got := rec.ExpiresAt.Sub(rec.CreatedAt); got != domain.DefaultTTL {
			t.Errorf("record lifetime = %v, want %v", got, domain.DefaultTTL)
		}

		got, err := h.store.FetchAndDelete(ctx, rec.ID)
		if err != nil {
			t.Fatalf("first FetchAndDelete() error = %v", err)
		}
		if got.Ciphertext != "v1:launch-codes" {
			t.Errorf("ciphertext = %q, want v1:launch-codes", got.Ciphertext)
		}

		if _, err := h.store.FetchAndDelete(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second FetchAndDelete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("fetch returns verifier", func(t *testing.T) {
		h := newHarness(t, Options{})

		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := h.store.FetchAndDelete(ctx, rec.ID)
		if err != nil {
			t.Fatalf("FetchAndDelete() error = %v", err)
		}
		if got.PasswordVerifier != "hash:swordfish" {
			t.Errorf("verifier = %q, want hash:swordfish", got.PasswordVerifier)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.store.FetchAndDelete(ctx, "doesnotexist00"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FetchAndDelete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		h := newHarness(t, Options{})
		seen := make(map[string]bool)
		for range 50 {
			rec, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:x"})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if !domain.ValidID(rec.ID) {
				t.Errorf("id %q does not match %s", rec.ID, domain.IDPattern)
			}
			if seen[rec.ID] {
				t.Fatalf("duplicate id %q", rec.ID)
			}
			seen[rec.ID] = true
		}
	})

	t.Run("concurrent fetch delivers once", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:once"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		const readers = 32
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			notFound  atomic.Int32
			start     = make(chan struct{})
		)
		for range readers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := h.store.FetchAndDelete(ctx, rec.ID)
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, domain.ErrNotFound):
					notFound.Add(1)
				default:
					t.Errorf("FetchAndDelete() unexpected error = %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() != 1 {
			t.Errorf("successes = %d, want 1", successes.Load())
		}
		if notFound.Load() != readers-1 {
			t.Errorf("not found = %d, want %d", notFound.Load(), readers-1)
		}
	})

	t.Run("delete prevents replay", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:gone"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := h.store.Delete(ctx, rec.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := h.store.FetchAndDelete(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FetchAndDelete() after Delete error = %v, want ErrNotFound", err)
		}
		if err := h.store.Delete(ctx, rec.ID); err != nil {
			t.Errorf("Delete() of missing id error = %v, want nil", err)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		h := newHarness(t, Options{TTL: time.Hour})

		before, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:a"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		after, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:b"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		h.advance(time.Hour - time.Second)
		if _, err := h.store.FetchAndDelete(ctx, before.ID); err != nil {
			t.Errorf("FetchAndDelete() just before expiry error = %v", err)
		}

		h.advance(2 * time.Second)
		if _, err := h.store.FetchAndDelete(ctx, after.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FetchAndDelete() after expiry error = %v, want ErrNotFound", err)
		}
	})

	t.Run("claim without verifier consumes", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, domain.Envelope{Ciphertext: "v1:open"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := h.store.Claim(ctx, rec.ID, nil); err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if _, err := h.store.Claim(ctx, rec.ID, nil); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second Claim() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("claim requires password without counting", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		for range 5 {
			if _, err := h.store.Claim(ctx, rec.ID, nil); !errors.Is(err, domain.ErrPasswordRequired) {
				t.Fatalf("Claim(nil) error = %v, want ErrPasswordRequired", err)
			}
		}
		if _, err := h.store.Claim(ctx, rec.ID, matchPassword("swordfish")); err != nil {
			t.Errorf("Claim() with correct password error = %v", err)
		}
	})

	t.Run("three wrong guesses lock out", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		for i, guess := range []string{"wrong1", "wrong2"} {
			_, err := h.store.Claim(ctx, rec.ID, matchPassword(guess))
			var attemptErr *domain.AttemptError
			if !errors.As(err, &attemptErr) {
				t.Fatalf("guess %d error = %v, want *domain.AttemptError", i+1, err)
			}
			if !errors.Is(err, domain.ErrPasswordMismatch) {
				t.Errorf("guess %d error should match ErrPasswordMismatch", i+1)
			}
			if want := domain.MaxPasswordAttempts - i - 1; attemptErr.Remaining != want {
				t.Errorf("guess %d remaining = %d, want %d", i+1, attemptErr.Remaining, want)
			}
		}

		if _, err := h.store.Claim(ctx, rec.ID, matchPassword("wrong3")); !errors.Is(err, domain.ErrLockedOut) {
			t.Fatalf("third guess error = %v, want ErrLockedOut", err)
		}
		if _, err := h.store.Claim(ctx, rec.ID, matchPassword("swordfish")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("claim after lockout error = %v, want ErrNotFound", err)
		}
	})

	t.Run("fewer wrong guesses then correct reveals", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		for _, guess := range []string{"wrong1", "wrong2"} {
			if _, err := h.store.Claim(ctx, rec.ID, matchPassword(guess)); !errors.Is(err, domain.ErrPasswordMismatch) {
				t.Fatalf("Claim(%q) error = %v, want ErrPasswordMismatch", guess, err)
			}
		}
		got, err := h.store.Claim(ctx, rec.ID, matchPassword("swordfish"))
		if err != nil {
			t.Fatalf("Claim() with correct password error = %v", err)
		}
		if got.Ciphertext != "v1:cipher" {
			t.Errorf("ciphertext = %q, want v1:cipher", got.Ciphertext)
		}
	})

	t.Run("concurrent correct claims deliver once", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			start     = make(chan struct{})
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := h.store.Claim(ctx, rec.ID, matchPassword("swordfish"))
				if err == nil {
					successes.Add(1)
				} else if !errors.Is(err, domain.ErrNotFound) {
					t.Errorf("Claim() unexpected error = %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() != 1 {
			t.Errorf("successes = %d, want 1", successes.Load())
		}
	})

	t.Run("concurrent wrong guesses lock out once", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec, err := h.store.Create(ctx, protectedEnvelope("swordfish"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		var (
			wg                          sync.WaitGroup
			lockedOut, mismatches, gone atomic.Int32
			start                       = make(chan struct{})
		)
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := h.store.Claim(ctx, rec.ID, matchPassword(fmt.Sprintf("wrong%d", i)))
				switch {
				case errors.Is(err, domain.ErrLockedOut):
					lockedOut.Add(1)
				case errors.Is(err, domain.ErrPasswordMismatch):
					mismatches.Add(1)
				case errors.Is(err, domain.ErrNotFound):
					gone.Add(1)
				default:
					t.Errorf("Claim() unexpected error = %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if lockedOut.Load() != 1 {
			t.Errorf("locked out = %d, want 1", lockedOut.Load())
		}
		if mismatches.Load() != domain.MaxPasswordAttempts-1 {
			t.Errorf("mismatches = %d, want %d", mismatches.Load(), domain.MaxPasswordAttempts-1)
		}
		if gone.Load() != 16-domain.MaxPasswordAttempts {
			t.Errorf("not found = %d, want %d", gone.Load(), 16-domain.MaxPasswordAttempts)
		}
		if _, err := h.store.Claim(ctx, rec.ID, matchPassword("swordfish")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Claim() after lockout error = %v, want ErrNotFound", err)
		}
	})
}

func TestDecideClaim(t *testing.T) {
	open := domain.Record{Envelope: domain.Envelope{Ciphertext: "c"}}
	gated := domain.Record{Envelope: protectedEnvelope("pw")}

	testCases := []struct {
		name         string
		rec          domain.Record
		used         int
		match        MatchFunc
		wantAttempts int
		wantRemove   bool
		wantErr      error
	}{
		{"open record", open, 0, nil, 0, true, nil},
		{"no password", gated, 1, nil, 1, false, domain.ErrPasswordRequired},
		{"correct", gated, 2, matchPassword("pw"), 2, true, nil},
		{"first miss", gated, 0, matchPassword("x"), 1, false, domain.ErrPasswordMismatch},
		{"last miss", gated, 2, matchPassword("x"), 3, true, domain.ErrLockedOut},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			attempts, remove, err := decideClaim(tc.rec, tc.used, 3, tc.match)
			if attempts != tc.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tc.wantAttempts)
			}
			if remove != tc.wantRemove {
				t.Errorf("remove = %v, want %v", remove, tc.wantRemove)
			}
			if tc.wantErr == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewID(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if len(id) != 22 {
		t.Errorf("len(NewID()) = %d, want 22", len(id))
	}
	if !domain.ValidID(id) {
		t.Errorf("NewID() = %q is not URL safe", id)
	}
}
