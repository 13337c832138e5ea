package envelope

import (
	"errors"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// State is a step of the reveal flow.
type State int

const (
	StateFetching State = iota
	StatePasswordRequired
	StateDecrypting
	StateRevealed
	StateLockedOut
	StateError
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StatePasswordRequired:
		return "password_required"
	case StateDecrypting:
		return "decrypting"
	case StateRevealed:
		return "revealed"
	case StateLockedOut:
		return "locked_out"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRevealed || s == StateLockedOut || s == StateError
}

// Session is the state of one reveal. Transitions are methods returning a
// new value; none of them perform I/O.
type Session struct {
	State       State
	ID          string
	Fragment    Fragment
	MaxAttempts int
	Attempts    int
	Plaintext   []byte
	Err         error

	// held is the envelope fetched from the store but not yet decrypted.
	// It is dropped on lockout so no further guesses can be made against it.
	held *domain.Envelope
}

// NewSession starts a reveal. With server-side gating a protected link
// goes straight to the password prompt so the record stays in the store
// until a correct password is presented.
func NewSession(id string, f Fragment, gateMode string, maxAttempts int) Session {
	if maxAttempts <= 0 {
		maxAttempts = domain.MaxPasswordAttempts
	}
	s := Session{
		State:       StateFetching,
		ID:          id,
		Fragment:    f,
		MaxAttempts: maxAttempts,
	}
	if f.Protected && gateMode == domain.GateServer {
		s.State = StatePasswordRequired
	}
	return s
}

// Failed returns a session that ended before it began, such as on an
// unparseable link.
func Failed(err error) Session {
	return Session{State: StateError, Err: err}
}

// Remaining is the number of password guesses left.
func (s Session) Remaining() int {
	return max(s.MaxAttempts-s.Attempts, 0)
}

// Holding reports whether a fetched envelope is awaiting password
// verification locally.
func (s Session) Holding() bool {
	return s.held != nil
}

// Fetched applies the result of FetchAndDelete.
func (s Session) Fetched(env domain.Envelope, err error) Session {
	if s.State != StateFetching {
		return s
	}
	switch {
	case errors.Is(err, domain.ErrPasswordRequired):
		// the server gates this record even though the link did not say so
		s.State = StatePasswordRequired
		return s
	case err != nil:
		return s.fail(err)
	}

	s.held = &env
	if env.Protected() {
		s.State = StatePasswordRequired
	} else {
		s.State = StateDecrypting
	}
	return s
}

// PasswordChecked applies a local verifier comparison.
func (s Session) PasswordChecked(ok bool) Session {
	if s.State != StatePasswordRequired || s.held == nil {
		return s
	}
	if ok {
		s.State = StateDecrypting
		s.Err = nil
		return s
	}
	return s.miss(s.Attempts + 1)
}

// Claimed applies the result of a server-side claim.
func (s Session) Claimed(env domain.Envelope, err error) Session {
	if s.State != StatePasswordRequired {
		return s
	}

	var attemptErr *domain.AttemptError
	switch {
	case err == nil:
		s.held = &env
		s.State = StateDecrypting
		s.Err = nil
	case errors.As(err, &attemptErr):
		// the server count is authoritative but ours never goes down
		s = s.miss(max(s.Attempts+1, s.MaxAttempts-attemptErr.Remaining))
	case errors.Is(err, domain.ErrLockedOut):
		s = s.miss(s.MaxAttempts)
	case errors.Is(err, domain.ErrTransient), errors.Is(err, domain.ErrPasswordRequired):
		// nothing was consumed or counted, the prompt stays open
		s.Err = err
	default:
		s = s.fail(err)
	}
	return s
}

// Decrypted applies the result of opening the held ciphertext. Empty
// plaintext is treated as a failure.
func (s Session) Decrypted(plaintext []byte, err error) Session {
	if s.State != StateDecrypting {
		return s
	}
	s.held = nil
	if err == nil && len(plaintext) == 0 {
		err = decryptionError("empty plaintext")
	}
	if err != nil {
		if !errors.Is(err, domain.ErrDecryption) {
			err = decryptionError(err.Error())
		}
		return s.fail(err)
	}
	s.State = StateRevealed
	s.Plaintext = plaintext
	s.Err = nil
	return s
}

func (s Session) miss(attempts int) Session {
	s.Attempts = min(attempts, s.MaxAttempts)
	if s.Attempts >= s.MaxAttempts {
		s.State = StateLockedOut
		s.held = nil
		s.Err = domain.ErrLockedOut
		return s
	}
	s.Err = &domain.AttemptError{Remaining: s.Remaining()}
	return s
}

func (s Session) fail(err error) Session {
	s.State = StateError
	s.held = nil
	s.Err = err
	return s
}
