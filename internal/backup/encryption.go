package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// At-rest encryption of export files: AES-256-GCM with a PBKDF2-derived key.
// Stored layout: magic || salt || nonce || ciphertext. The manifest checksum
// covers the stored (encrypted) bytes.

var encryptionMagic = []byte("OBKE")

const (
	encryptionSaltSize   = 16
	encryptionIterations = 100_000
	encryptionKeySize    = 32
)

// Encryptor applies optional at-rest encryption to export payloads.
type Encryptor struct {
	enabled    bool
	passphrase []byte
}

// NewEncryptor creates an encryptor. An empty passphrase with enabled=true
// is a validation error.
func NewEncryptor(enabled bool, passphrase string) (*Encryptor, error) {
	if enabled && passphrase == "" {
		return nil, NewValidationError("encryption passphrase is required when encryption is enabled", nil)
	}
	return &Encryptor{enabled: enabled, passphrase: []byte(passphrase)}, nil
}

// Enabled reports whether encryption is active.
func (e *Encryptor) Enabled() bool {
	return e.enabled
}

// Encrypt seals data. A disabled encryptor returns the input unchanged.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if !e.enabled {
		return data, nil
	}

	salt := make([]byte, encryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, NewEncryptionError("failed to generate salt", err)
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}

	out := make([]byte, 0, len(encryptionMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, encryptionMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt. A disabled encryptor returns the
// input unchanged.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if !e.enabled {
		return data, nil
	}

	if len(data) < len(encryptionMagic)+encryptionSaltSize || !bytes.HasPrefix(data, encryptionMagic) {
		return nil, NewEncryptionError("data is not an encrypted payload", nil)
	}
	rest := data[len(encryptionMagic):]
	salt := rest[:encryptionSaltSize]
	rest = rest[encryptionSaltSize:]

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	if len(rest) < gcm.NonceSize() {
		return nil, NewEncryptionError("encrypted payload is truncated", io.ErrUnexpectedEOF)
	}
	nonce := rest[:gcm.NonceSize()]
	ciphertext := rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewEncryptionError("decryption failed", err)
	}
	return plaintext, nil
}

func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, encryptionIterations, encryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM", err)
	}
	return gcm, nil
}
