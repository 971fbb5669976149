package cryptoutils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.Contains(t, string(privPEM), "EC PRIVATE KEY")
	assert.Contains(t, string(pubPEM), "PUBLIC KEY")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("shamir share payload")

	sealed, err := EncryptWithPublicKey(pubPEM, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := DecryptWithPrivateKey(privPEM, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	_, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	first, err := EncryptWithPublicKey(pubPEM, []byte("same input"))
	require.NoError(t, err)
	second, err := EncryptWithPublicKey(pubPEM, []byte("same input"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second))
}

func TestDecryptWithWrongKey(t *testing.T) {
	_, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)
	otherPriv, _, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := EncryptWithPublicKey(pubPEM, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(otherPriv, sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	privPEM, _, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(privPEM, []byte("too short"))
	assert.Error(t, err)

	_, err = DecryptWithPrivateKey([]byte("not a pem"), make([]byte, 100))
	assert.Error(t, err)
}

func TestEncryptRejectsBadPublicKey(t *testing.T) {
	_, err := EncryptWithPublicKey([]byte("not a pem"), []byte("secret"))
	assert.Error(t, err)
}
