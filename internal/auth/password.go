package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// passwordCost is the bcrypt work factor.
const passwordCost = bcrypt.DefaultCost

// NewSalt returns a random per-user salt.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword derives the stored digest for password. The salted SHA-256
// pre-hash keeps bcrypt's 72-byte input limit out of the picture, so any
// password length is accepted; the result is always 60 characters.
func HashPassword(password, salt string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password, salt), passwordCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored digest.
func VerifyPassword(password, salt, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password, salt))
	return err == nil
}

func prehash(password, salt string) []byte {
	sum := sha256.Sum256([]byte(salt + password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}
