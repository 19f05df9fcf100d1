// Package secret encrypts broker credentials at rest. AES-256-GCM with
// a random nonce per message, base64 envelope so ciphertext fits in a
// TEXT column.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecryptFailed means the ciphertext could not be authenticated.
// Callers treat this as "credentials invalid, require re-entry", never
// as a fatal process error.
var ErrDecryptFailed = errors.New("secret: decrypt failed")

// Codec encrypts and decrypts short strings with a fixed key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from a base64-encoded 32-byte key.
func NewCodec(keyB64 string) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("secret: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secret: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: init gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns a base64 envelope of nonce||ciphertext.
// The empty string encrypts to the empty string so unset credential
// fields round-trip cleanly.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 envelope produced by Encrypt.
func (c *Codec) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", ErrDecryptFailed
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return "", ErrDecryptFailed
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

// NewKey generates a fresh random key in the format NewCodec accepts.
func NewKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("secret: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
