package domain

import (
	"regexp"
	"time"
)

const (
	// MaxSecretSize is the maximum allowed size for an encoded ciphertext (64 KB).
	MaxSecretSize = 64 * 1024

	// MaxVerifierSize bounds the stored password verifier.
	MaxVerifierSize = 512

	// MaxRequestBodySize is the maximum allowed request body size.
	// Set slightly larger than MaxSecretSize to account for JSON overhead.
	MaxRequestBodySize = MaxSecretSize + MaxVerifierSize + 1024

	// MaxPasswordAttempts is the number of incorrect password guesses
	// after which a secret is destroyed.
	MaxPasswordAttempts = 3

	// DefaultTTL is the fixed lifetime of a stored secret.
	DefaultTTL = 24 * time.Hour
)

// Gate modes select where password guesses are counted.
const (
	// GateServer keeps the record in the store until the password is
	// verified, counting failures server-side.
	GateServer = "server"

	// GateClient hands the record and its verifier to the recipient on
	// first fetch and counts failures in the reveal session only.
	GateClient = "client"
)

// IDPattern is the shape of a valid secret identifier.
const IDPattern = `[A-Za-z0-9_-]{12,64}`

var idRE = regexp.MustCompile(`^` + IDPattern + `$`)

// ValidID reports whether id looks like an identifier the store could
// have produced.
func ValidID(id string) bool {
	return idRE.MatchString(id)
}
