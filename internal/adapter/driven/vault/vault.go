// Package vault seals credential key material before it reaches a datastore.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

// Sealer encrypts values with AES-256-GCM. Output is base64(nonce || ciphertext || tag).
type Sealer struct {
	gcm cipher.AEAD // nil when no key is configured.
}

// NewSealer creates a Sealer. key must be 32 bytes, or nil to disable sealing
// (every call then returns driven.ErrEncryptionKeyNotSet).
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		return &Sealer{}, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Enabled reports whether a key is configured.
func (s *Sealer) Enabled() bool {
	return s.gcm != nil
}

// Seal encrypts plaintext. additional binds the ciphertext to its row so a
// sealed value cannot be swapped between identities.
func (s *Sealer) Seal(plaintext, additional string) (string, error) {
	if s.gcm == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(additional))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal with the same additional data.
func (s *Sealer) Open(encoded, additional string) (string, error) {
	if s.gcm == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, []byte(additional))
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}
