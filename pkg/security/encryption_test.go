package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("legacy-api-secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "legacy-api-secret")

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "legacy-api-secret", plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = enc.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsShortInput(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestNewAESEncryptorRejectsBadKeySize(t *testing.T) {
	_, err := NewAESEncryptor([]byte("too-short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
