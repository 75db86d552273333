package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid 32-byte key in hex (64 chars)
const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestEncryption(t *testing.T) *AESEncryptionService {
	t.Helper()
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)
	return svc
}

func TestAESEncryptionService_NewInvalidKey(t *testing.T) {
	_, err := NewAESEncryptionService("shortkey")
	assert.Error(t, err)

	_, err = NewAESEncryptionService("abcd")
	assert.ErrorContains(t, err, "32 bytes")
}

func TestAESEncryptionService_RoundTripAccountNumber(t *testing.T) {
	svc := newTestEncryption(t)

	ciphertext, err := svc.Encrypt("0012345678")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "0012345678")

	plain, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "0012345678", plain)
}

func TestAESEncryptionService_RandomNonce(t *testing.T) {
	svc := newTestEncryption(t)

	c1, err := svc.Encrypt("same")
	require.NoError(t, err)
	c2, err := svc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestAESEncryptionService_DecryptFailures(t *testing.T) {
	svc := newTestEncryption(t)
	other, err := NewAESEncryptionService("abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err, "wrong key")

	_, err = svc.Decrypt(ciphertext[:len(ciphertext)-2] + "ff")
	assert.Error(t, err, "tampered")

	_, err = svc.Decrypt("not-hex-at-all!!!")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcdef")
	assert.Error(t, err)
}
