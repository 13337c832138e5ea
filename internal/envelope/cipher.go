// Package envelope implements the client side of the secret exchange: it
// seals plaintext under a random key that only ever travels in a link
// fragment, and drives the reveal flow including the password gate.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceLen = 12 // GCM standard
	keyLen   = 32 // AES-256

	formatPrefix = "v1:"
)

var errKeyLength = errors.New("key must be 32 bytes")

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under key and returns
// "v1:" + base64(nonce|ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	raw := gcm.Seal(nonce, nonce, plaintext, nil)
	return formatPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt opens a blob produced by Encrypt. Any failure, including
// authentication failure under the wrong key, is reported as ErrDecryption.
func Decrypt(blob string, key []byte) ([]byte, error) {
	b64, ok := strings.CutPrefix(blob, formatPrefix)
	if !ok {
		return nil, decryptionError("unsupported format")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, decryptionError("b64: " + err.Error())
	}
	if len(raw) < nonceLen+1 {
		return nil, decryptionError("blob too short")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, decryptionError(err.Error())
	}
	pt, err := gcm.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return nil, decryptionError("auth failed")
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, errKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
