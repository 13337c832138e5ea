package domain

import "time"

// Envelope is what a sender hands to the store: an opaque ciphertext and
// an optional one-way hash of the recipient password.
type Envelope struct {
	Ciphertext       string `json:"ciphertext"`
	PasswordVerifier string `json:"password_verifier,omitempty"`
}

// Protected reports whether the envelope is password gated.
func (e Envelope) Protected() bool {
	return e.PasswordVerifier != ""
}

// Record is a stored envelope. Its absence from the store is the only
// signal that a secret is gone.
type Record struct {
	ID string `json:"id"`
	Envelope
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its lifetime at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type CreateReq struct {
	Ciphertext       string `json:"ciphertext"`
	PasswordVerifier string `json:"password_verifier,omitempty"`
}

type CreateRes struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type FetchRes struct {
	Ciphertext       string `json:"ciphertext"`
	PasswordVerifier string `json:"password_verifier,omitempty"`
}

type ClaimReq struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type DeleteReq struct {
	ID string `json:"id"`
}

type DeleteRes struct {
	Status string `json:"status"`
}

// ErrorRes is the body of every non-2xx API response.
type ErrorRes struct {
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// InfoRes describes server policy to clients.
type InfoRes struct {
	GateMode    string `json:"gate_mode"`
	TTL         string `json:"ttl"`
	MaxAttempts int    `json:"max_attempts"`
}
