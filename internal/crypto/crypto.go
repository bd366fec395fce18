package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrDecryption is returned when ciphertext is malformed or was
// produced under a different key. Callers treat it as a
// credential-invalid condition, not a fatal error.
var ErrDecryption = errors.New("crypto: decryption failed")

// Vault encrypts and decrypts tenant provider secrets with AES-GCM.
// The key is process-wide configuration loaded once at startup and
// passed in here; nothing in this package reads ambient state.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives a 32-byte AES key from the configured key material
// via SHA-256 and returns a ready Vault. Any non-empty key string is
// accepted; operators are expected to supply high-entropy material.
func NewVault(key string) (*Vault, error) {
	if key == "" {
		return nil, errors.New("crypto: encryption key is required")
	}

	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// ciphertext and nonce. Encryption is intentionally non-deterministic;
// the same secret encrypts to different bytes on every call.
func (v *Vault) Encrypt(plaintext string) ([]byte, []byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. Returns ErrDecryption
// if the ciphertext or nonce is malformed or the key has changed.
func (v *Vault) Decrypt(ciphertext, nonce []byte) (string, error) {
	if len(nonce) != v.aead.NonceSize() {
		return "", ErrDecryption
	}
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
