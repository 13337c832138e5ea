// Package store holds encrypted envelopes under random identifiers and
// guarantees that each one is handed out at most once.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// MatchFunc reports whether a password guess matches the stored verifier.
type MatchFunc func(verifier string) bool

// Store is the server-side secret store.
//
// FetchAndDelete and Claim are atomic per identifier: with any number of
// concurrent callers for the same id, exactly one observes the record.
type Store interface {
	// Create persists env under a fresh identifier with the store TTL.
	Create(ctx context.Context, env domain.Envelope) (domain.Record, error)
	// FetchAndDelete returns the record and removes it in one step.
	FetchAndDelete(ctx context.Context, id string) (domain.Record, error)
	// Delete removes the record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// Claim consumes the record only once match accepts its verifier,
	// counting failed guesses and destroying the record at the limit.
	// Records without a verifier are consumed unconditionally. A nil
	// match on a gated record yields ErrPasswordRequired and is not counted.
	Claim(ctx context.Context, id string, match MatchFunc) (domain.Record, error)
	Close() error
}

// Options configures a store backend.
type Options struct {
	TTL         time.Duration
	MaxAttempts int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() (string, error)
}

// DefaultOptions returns the production options.
func DefaultOptions() Options {
	return Options{
		TTL:         domain.DefaultTTL,
		MaxAttempts: domain.MaxPasswordAttempts,
		Now:         time.Now,
		NewID:       NewID,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TTL <= 0 {
		o.TTL = def.TTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	if o.NewID == nil {
		o.NewID = def.NewID
	}
	return o
}

// newRecord stamps env with a fresh id and the store lifetime.
func (o Options) newRecord(env domain.Envelope) (domain.Record, error) {
	id, err := o.NewID()
	if err != nil {
		return domain.Record{}, fmt.Errorf("generate id: %w", err)
	}
	now := o.Now().UTC()
	return domain.Record{
		ID:        id,
		Envelope:  env,
		CreatedAt: now,
		ExpiresAt: now.Add(o.TTL),
	}, nil
}

// maxIDAttempts bounds the retry loop on the (practically impossible)
// identifier collision.
const maxIDAttempts = 3

var (
	errIDCollision = errors.New("could not allocate a unique secret id")
	errStoreClosed = errors.New("store closed")
)

// transient marks err as an infrastructure failure.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}

// isOutcome reports whether err is a protocol outcome rather than a
// storage failure.
func isOutcome(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrPasswordRequired) ||
		errors.Is(err, domain.ErrPasswordMismatch) ||
		errors.Is(err, domain.ErrLockedOut)
}

// decideClaim applies the password gate to a live record given the number
// of failures already recorded. It returns the new failure count and
// whether the record must be removed.
func decideClaim(rec domain.Record, used, max int, match MatchFunc) (attempts int, remove bool, err error) {
	if !rec.Protected() {
		return used, true, nil
	}
	if match == nil {
		return used, false, domain.ErrPasswordRequired
	}
	if match(rec.PasswordVerifier) {
		return used, true, nil
	}
	used++
	if used >= max {
		return used, true, domain.ErrLockedOut
	}
	return used, false, &domain.AttemptError{Remaining: max - used}
}

// runJanitor calls sweep every interval until ctx is done.
func runJanitor(ctx context.Context, interval time.Duration, sweep func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
