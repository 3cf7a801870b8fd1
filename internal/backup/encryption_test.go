package backup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptorRoundTrip(t *testing.T) {
	e, err := NewEncryptor(true, "correct horse battery staple")
	require.NoError(t, err)

	plaintext := []byte(`[{"id":1,"name":"Ama"}]`)
	sealed, err := e.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)
	assert.True(t, bytes.HasPrefix(sealed, []byte("OBKE")))

	opened, err := e.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestEncryptorDisabledPassThrough(t *testing.T) {
	e, err := NewEncryptor(false, "")
	require.NoError(t, err)
	assert.False(t, e.Enabled())

	data := []byte("plain")
	sealed, err := e.Encrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, sealed)

	opened, err := e.Decrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, opened)
}

func TestEncryptorRequiresPassphrase(t *testing.T) {
	_, err := NewEncryptor(true, "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestEncryptorWrongPassphrase(t *testing.T) {
	e1, err := NewEncryptor(true, "first")
	require.NoError(t, err)
	sealed, err := e1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	e2, err := NewEncryptor(true, "second")
	require.NoError(t, err)
	_, err = e2.Decrypt(sealed)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeEncryption))
}

func TestEncryptorTamperedCiphertext(t *testing.T) {
	e, err := NewEncryptor(true, "passphrase")
	require.NoError(t, err)
	sealed, err := e.Encrypt([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xFF
	_, err = e.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptorRejectsGarbage(t *testing.T) {
	e, err := NewEncryptor(true, "passphrase")
	require.NoError(t, err)

	_, err = e.Decrypt([]byte("not an encrypted payload"))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeEncryption))
}
