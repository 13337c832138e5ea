package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// Sealed is the result of encrypting a secret: what goes to the store and
// what goes into the link fragment.
type Sealed struct {
	Envelope domain.Envelope
	Fragment Fragment
}

// Seal encrypts plaintext under a fresh random key. A non-empty password
// adds a verifier to the envelope; it never becomes key material.
func Seal(plaintext []byte, password string) (Sealed, error) {
	if len(plaintext) == 0 {
		return Sealed{}, domain.ErrEmptyCiphertext
	}
	key, err := GenerateKey()
	if err != nil {
		return Sealed{}, err
	}
	ct, err := Encrypt(plaintext, key)
	if err != nil {
		return Sealed{}, fmt.Errorf("encrypt: %w", err)
	}
	if len(ct) > domain.MaxSecretSize {
		return Sealed{}, domain.ErrSecretTooLarge
	}

	sealed := Sealed{
		Envelope: domain.Envelope{Ciphertext: ct},
		Fragment: Fragment{Key: key},
	}
	if password != "" {
		verifier, err := HashPassword(password)
		if err != nil {
			return Sealed{}, fmt.Errorf("hash password: %w", err)
		}
		sealed.Envelope.PasswordVerifier = verifier
		sealed.Fragment.Protected = true
	}
	return sealed, nil
}

// Share is a created secret ready to hand to a recipient.
type Share struct {
	ID        string
	Link      string
	ExpiresAt time.Time
	Protected bool
}

// Sender runs the create path against a remote store.
type Sender struct {
	remote  Remote
	baseURL string
}

func NewSender(remote Remote, baseURL string) *Sender {
	return &Sender{remote: remote, baseURL: baseURL}
}

// Create seals plaintext, stores the envelope and builds the link.
func (s *Sender) Create(ctx context.Context, plaintext []byte, password string) (Share, error) {
	sealed, err := Seal(plaintext, password)
	if err != nil {
		return Share{}, err
	}
	res, err := s.remote.Create(ctx, sealed.Envelope)
	if err != nil {
		return Share{}, fmt.Errorf("store secret: %w", err)
	}
	return Share{
		ID:        res.ID,
		Link:      BuildLink(s.baseURL, res.ID, sealed.Fragment),
		ExpiresAt: res.ExpiresAt,
		Protected: sealed.Fragment.Protected,
	}, nil
}
