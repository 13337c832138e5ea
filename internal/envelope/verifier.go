package envelope

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHashFormat   = errors.New("invalid encoded hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// HashConfig holds the Argon2id parameters used for new verifiers.
// Verification always uses the parameters encoded in the hash itself.
type HashConfig struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultHashConfig returns the production configuration.
func DefaultHashConfig() HashConfig {
	return HashConfig{
		Time:       3,
		Memory:     64 * 1024, // 64 MB
		Threads:    2,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// TestHashConfig returns a faster configuration suitable for testing.
func TestHashConfig() HashConfig {
	return HashConfig{
		Time:       1,
		Memory:     1024, // 1 MB - faster for tests
		Threads:    1,
		SaltLength: 16,
		KeyLength:  32,
	}
}

const (
	maxHashTime   = 10
	maxHashMemory = 256 * 1024 // 256 MB
)

var (
	hashConfig   = DefaultHashConfig()
	hashConfigMu sync.RWMutex
)

func getHashConfig() HashConfig {
	hashConfigMu.RLock()
	defer hashConfigMu.RUnlock()
	return hashConfig
}

func setHashConfig(cfg HashConfig) {
	hashConfigMu.Lock()
	defer hashConfigMu.Unlock()
	hashConfig = cfg
}

// HashPassword derives a verifier for password, encoded in PHC format:
// $argon2id$v=19$m=65536,t=3,p=2$<base64-salt>$<base64-hash>
func HashPassword(password string) (string, error) {
	cfg := getHashConfig()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		cfg.Memory,
		cfg.Time,
		cfg.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword reports whether password matches the encoded verifier,
// comparing in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	cfg, salt, hash, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// ValidVerifier reports whether encoded is a well-formed verifier.
func ValidVerifier(encoded string) bool {
	_, _, _, err := decodeHash(encoded)
	return err == nil
}

// PasswordMatcher adapts VerifyPassword to a store claim predicate.
// Malformed verifiers never match.
func PasswordMatcher(password string) func(verifier string) bool {
	return func(verifier string) bool {
		ok, err := VerifyPassword(password, verifier)
		return err == nil && ok
	}
}

func decodeHash(encoded string) (HashConfig, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}
	if version != argon2.Version {
		return HashConfig{}, nil, nil, ErrIncompatibleVersion
	}

	var cfg HashConfig
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Time, &cfg.Threads); err != nil {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}
	// verifiers come from untrusted senders and are checked server-side
	if cfg.Time == 0 || cfg.Time > maxHashTime ||
		cfg.Threads == 0 || cfg.Memory > maxHashMemory {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}
	cfg.SaltLength = uint32(len(salt))

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return HashConfig{}, nil, nil, ErrInvalidHashFormat
	}
	cfg.KeyLength = uint32(len(hash))

	return cfg, salt, hash, nil
}
