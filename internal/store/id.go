package store

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a 22 character URL-safe identifier carrying the 122 random
// bits of a version 4 UUID.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(u[:]), nil
}
