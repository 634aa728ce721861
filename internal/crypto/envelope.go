package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// nonceLength is 96 bits as required by AES-GCM.
const nonceLength = 12

// ErrDecryptionFailed means the ciphertext could not be authenticated:
// wrong key, corrupted data, or a malformed blob. Callers must treat the
// credential as unusable and require re-authorization, never repair it.
var ErrDecryptionFailed = errors.New("decryption failed: wrong key or corrupted data")

// Envelope encrypts and decrypts token material with AES-256-GCM under a
// process-wide key. The stored form is hex(nonce || ciphertext || tag).
type Envelope struct {
	aead cipher.AEAD
}

// New builds an Envelope from a 32-byte key. The key comes from
// configuration once at startup; a bad key is a fatal config error there,
// so New only guards the invariant.
func New(key []byte) (*Envelope, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Envelope{aead: aead}, nil
}

// Seal encrypts plaintext, drawing a fresh random nonce for every call.
// Nonces are never caller-supplied; reuse under the same key would break
// GCM, so the only way to get one is from inside this function.
func (e *Envelope) Seal(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(out), nil
}

// Open decrypts a blob produced by Seal. Any failure, including malformed
// hex or a truncated blob, surfaces as ErrDecryptionFailed so callers can
// distinguish "credential unusable" from "not found".
func (e *Envelope) Open(blob string) (string, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < nonceLength {
		return "", ErrDecryptionFailed
	}
	nonce, ciphertext := raw[:nonceLength], raw[nonceLength:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
