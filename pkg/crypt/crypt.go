// Package crypt encrypts small secrets at rest with AES-256-GCM keyed from
// APP_KEY. Ciphertext is base64url(nonce || sealed) so it fits a text column.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/darcho/darcho/config"
)

// ErrDecrypt is returned when decryption or authentication fails.
var ErrDecrypt = errors.New("crypt: decryption failed")

func aead() (cipher.AEAD, error) {
	secret := config.AppKey()
	if secret == "" {
		return nil, errors.New("crypt: APP_KEY not configured")
	}
	k := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("crypt: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext. The empty string stays empty.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypt: nonce: %w", err)
	}
	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	gcm, err := aead()
	if err != nil {
		return "", err
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil || len(data) < gcm.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// Mask hides all but the last four characters: "1000123456789" -> "*********6789".
func Mask(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

// Secret is a string column stored encrypted. It never marshals to JSON in
// the clear; callers expose Mask(s.Plain()) instead.
type Secret string

// Plain returns the decrypted value.
func (s Secret) Plain() string { return string(s) }

// Masked is Mask of the decrypted value.
func (s Secret) Masked() string { return Mask(string(s)) }

// MarshalJSON emits the masked form.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.Masked() + `"`), nil
}

// Value encrypts on write.
func (s Secret) Value() (driver.Value, error) {
	return Encrypt(string(s))
}

// Scan decrypts on read.
func (s *Secret) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("crypt: cannot scan %T into Secret", src)
	}
	plain, err := Decrypt(raw)
	if err != nil {
		return err
	}
	*s = Secret(plain)
	return nil
}
