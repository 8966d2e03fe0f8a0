package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidToken is returned for remember tokens that fail to decrypt or
// decode.
var ErrInvalidToken = errors.New("auth: invalid remember token")

// TokenCodec encrypts the remember-me credentials. The token carries the
// literal name and password, so anyone holding the key can recover every
// remembered password.
type TokenCodec struct {
	key []byte
}

// NewTokenCodec derives a cipher key from secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: remember secret must be at least 16 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("tagboard remember token"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("auth: derive key: %w", err)
	}
	return &TokenCodec{key: key}, nil
}

// Encode seals name and password into a cookie-safe token.
func (c *TokenCodec) Encode(name, password string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	plain := base64.StdEncoding.EncodeToString([]byte(name)) + "|" + base64.StdEncoding.EncodeToString([]byte(password))
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token produced by Encode.
func (c *TokenCodec) Decode(token string) (name, password string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", "", ErrInvalidToken
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	parts := strings.Split(string(plain), "|")
	if len(parts) != 2 {
		return "", "", ErrInvalidToken
	}
	nameBytes, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", ErrInvalidToken
	}
	passBytes, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", ErrInvalidToken
	}
	return string(nameBytes), string(passBytes), nil
}
