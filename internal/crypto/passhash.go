// Package crypto implements server-side password hashing, strength scoring,
// and opaque token derivation.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost tuned for server-side hashing; deliberately slow.
const hashCost = 12

// Hasher hashes and verifies passwords with a process-wide pepper appended
// before the salted adaptive hash. The pepper is injected once at startup
// so tests can swap secrets without global state.
type Hasher struct {
	pepper []byte
}

// NewHasher constructs a Hasher with the given pepper.
func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper)}
}

// Hash returns a salted bcrypt hash of password+pepper. Two calls with the
// same input produce different outputs, so the result must never be used as
// a lookup key; see LookupKey for that.
func (h *Hasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword(h.peppered(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches the stored hash. A mismatch is
// reported as false, never as an error.
func (h *Hasher) Verify(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), h.peppered(password)) == nil
}

func (h *Hasher) peppered(password string) []byte {
	b := make([]byte, 0, len(password)+len(h.pepper))
	b = append(b, password...)
	return append(b, h.pepper...)
}

// RandomToken returns n cryptographically secure random bytes hex-encoded.
// Used for refresh token plaintexts.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LookupKey derives the deterministic storage key for a token plaintext.
// Plain SHA-256 is sufficient here: the input is a high-entropy random
// token, not a password, and the store must never hold the usable bearer
// value verbatim.
func LookupKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
