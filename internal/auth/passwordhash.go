// Package auth implements the Auth Gate (C8): token issuance and
// validation, password hashing, and the fixed /auth HTTP surface (§4.8,
// §6.1).
package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Password hashing parameters are a wire/storage contract (§4.8): any
// change invalidates every stored hash. Do not tune these without a
// migration plan.
const (
	pbkdf2Iterations = 300000
	pbkdf2KeyLength  = 64
	saltLength       = 64
)

// HashPassword derives a PBKDF2-HMAC-SHA512 hash from a plaintext
// password and a freshly generated salt. The salt is returned
// base64-encoded and must be stored alongside the hex-encoded hash.
func HashPassword(password string) (hash string, salt string, err error) {
	saltBytes := make([]byte, saltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("auth: generating salt: %w", err)
	}
	salt = base64.StdEncoding.EncodeToString(saltBytes)

	derived := pbkdf2.Key([]byte(password), saltBytes, pbkdf2Iterations, pbkdf2KeyLength, sha512.New)
	hash = hex.EncodeToString(derived)
	return hash, salt, nil
}

// VerifyPassword recomputes the PBKDF2 hash with the stored salt and
// compares it to the stored hash in constant time.
func VerifyPassword(password, storedHash, storedSalt string) (bool, error) {
	saltBytes, err := base64.StdEncoding.DecodeString(storedSalt)
	if err != nil {
		return false, fmt.Errorf("auth: decoding salt: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), saltBytes, pbkdf2Iterations, pbkdf2KeyLength, sha512.New)
	candidate := hex.EncodeToString(derived)

	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1, nil
}
