// Copyright (c) 2026 Northlink Communications. All rights reserved.

package sec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// SecretCipher encrypts small secrets (TOTP seeds) at rest with AES-256-GCM.
//
// The 32-byte key is derived from the configured passphrase with SHA-256 so
// any length key material works consistently. The key is loaded once at
// startup and read-only thereafter, so the cipher is safe for unlimited
// concurrent use.
type SecretCipher struct {
	key []byte
}

// NewSecretCipher derives an AES-256 key from the given passphrase.
func NewSecretCipher(passphrase string) (*SecretCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("sec: encryption key is not configured")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &SecretCipher{key: sum[:]}, nil
}

// Encrypt seals plaintext and returns base64 text safe for a database column.
// The nonce is prepended to the ciphertext so Decrypt can extract it.
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("sec: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("sec: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("sec: generating nonce: %w", err)
	}

	// Nonce is prepended to ciphertext: [nonce][ciphertext+tag]
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Extracts the nonce from the first N bytes.
func (c *SecretCipher) Decrypt(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("sec: decoding ciphertext: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("sec: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("sec: creating GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("sec: ciphertext too short")
	}

	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("sec: decrypting: %w", err)
	}

	return string(plaintext), nil
}
