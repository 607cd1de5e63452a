// Package secret implements the hashing, key derivation and symmetric
// encryption used across the server.
//
// Three primitives cover every need: SHA-256 digests for blob
// deduplication and password hashing, a PBKDF2 step that stretches a
// password hash into an AES key for the events channel, and an
// AES-256-GCM cipher for the frames themselves.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// deriveIterations is the PBKDF2 iteration count for channel keys.
	deriveIterations = 4096

	// deriveKeyLen is the AES-256 key length in bytes.
	deriveKeyLen = 32
)

// saltAlphabet is the character set salts are drawn from.
const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PasswordHash computes the stored credential for a password: the hex
// SHA-256 digest of the password concatenated with its salt.
func PasswordHash(password, salt string) string {
	return Sha256Hex([]byte(password + salt))
}

// NewSalt returns a random alphanumeric string of the given length.
func NewSalt(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("salt length must be positive, got %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(buf), nil
}

// DeriveKey stretches a password hash into an AES-256 key with
// PBKDF2-HMAC-SHA256. Both peers of the events channel run the same
// derivation, so the key never crosses the wire. The salt is currently
// always empty; the parameter stays so a per-session salt can be
// introduced without changing callers.
func DeriveKey(passwordHash, salt string) []byte {
	return pbkdf2.Key([]byte(passwordHash), []byte(salt), deriveIterations, deriveKeyLen, sha256.New)
}
