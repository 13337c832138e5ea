package domain

import (
	"errors"
	"fmt"
)

// Store errors. ErrNotFound covers missing, expired and already delivered
// records alike and must never be refined for callers.
var (
	// ErrNotFound indicates the record is absent for any reason.
	ErrNotFound = errors.New("secret not found or already viewed")

	// ErrTransient indicates the backing store is unavailable. Safe to retry.
	ErrTransient = errors.New("secret store unavailable")

	// ErrInvalidID indicates an identifier that the store could never have issued.
	ErrInvalidID = errors.New("invalid secret id")
)

// Envelope errors.
var (
	// ErrEmptyCiphertext indicates a create request without a payload.
	ErrEmptyCiphertext = errors.New("ciphertext is required")

	// ErrSecretTooLarge indicates a payload over MaxSecretSize.
	ErrSecretTooLarge = errors.New("secret exceeds maximum size")

	// ErrMalformedLocator indicates the link or its fragment cannot be parsed.
	ErrMalformedLocator = errors.New("invalid link format")

	// ErrDecryption indicates the key material is invalid or corrupted.
	ErrDecryption = errors.New("decryption failed")
)

// Password gate errors.
var (
	// ErrPasswordRequired indicates the record is gated and no password was supplied.
	ErrPasswordRequired = errors.New("password required")

	// ErrPasswordMismatch indicates a wrong guess with attempts remaining.
	ErrPasswordMismatch = errors.New("incorrect password")

	// ErrLockedOut indicates attempts are exhausted and the secret was destroyed.
	ErrLockedOut = errors.New("too many incorrect attempts, secret destroyed")
)

// AttemptError reports a wrong password guess that left attempts in the
// budget. It matches ErrPasswordMismatch.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s, %d attempt(s) remaining", ErrPasswordMismatch, e.Remaining)
}

func (e *AttemptError) Is(target error) bool {
	return target == ErrPasswordMismatch
}
