package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, owner string) []byte {
	t.Helper()
	kr, err := NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	key, err := kr.DeriveKey(owner)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t, "owner-1")

	for _, plaintext := range []string{"hunter2", "", "пароль", "a long secret value with spaces"} {
		ct, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		got, err := Decrypt(ct, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	key := testKey(t, "owner-1")

	a, err := Encrypt("same input", key)
	require.NoError(t, err)
	b, err := Encrypt("same input", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	ct, err := Encrypt("secret", testKey(t, "owner-1"))
	require.NoError(t, err)

	_, err = Decrypt(ct, testKey(t, "owner-2"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t, "owner-1")
	ct, err := Encrypt("secret", key)
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0xff
	_, err = Decrypt(ct, key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptRejectsTruncatedInput(t *testing.T) {
	key := testKey(t, "owner-1")

	for _, input := range [][]byte{nil, {}, {1, 2, 3}} {
		_, err := Decrypt(input, key)
		assert.ErrorIs(t, err, ErrDecrypt)
	}
}
