package cryptoutils

import (
	"bytes"
	"testing"

	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyAndNonce(t *testing.T) ([]byte, []byte) {
	key, err := RandomBytes(SymmetricKeySize)
	require.NoError(t, err)
	nonce, err := RandomBytes(GCMNonceSize)
	require.NoError(t, err)
	return key, nonce
}

func TestAESGCM_RoundTrip(t *testing.T) {
	key, nonce := testKeyAndNonce(t)

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Simple string",
			data: []byte("top-secret"),
		},
		{
			name: "JSON data",
			data: []byte(`{"username":"admin","password":"secret123"}`),
		},
		{
			name: "Binary data",
			data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD},
		},
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Long data",
			data: bytes.Repeat([]byte{0xAB}, 4096),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, tag, err := AESGCM{}.Encrypt(key, nonce, tc.data)
			require.NoError(t, err)
			require.Len(t, ciphertext, len(tc.data))
			require.Len(t, tag, GCMTagSize)

			plaintext, err := AESGCM{}.Decrypt(key, nonce, ciphertext, tag)
			require.NoError(t, err)
			require.Equal(t, len(tc.data), len(plaintext))
			require.True(t, bytes.Equal(tc.data, plaintext))
		})
	}
}

func TestAESGCM_TamperDetection(t *testing.T) {
	key, nonce := testKeyAndNonce(t)

	ciphertext, tag, err := AESGCM{}.Encrypt(key, nonce, []byte("top-secret payload"))
	require.NoError(t, err)

	for i := range ciphertext {
		mutated := bytes.Clone(ciphertext)
		mutated[i] ^= 0x01
		plaintext, err := AESGCM{}.Decrypt(key, nonce, mutated, tag)
		require.ErrorIs(t, err, interfaces.ErrCrypto, "ciphertext byte %d", i)
		require.Nil(t, plaintext)
	}

	for i := range tag {
		mutated := bytes.Clone(tag)
		mutated[i] ^= 0x80
		plaintext, err := AESGCM{}.Decrypt(key, nonce, ciphertext, mutated)
		require.ErrorIs(t, err, interfaces.ErrCrypto, "tag byte %d", i)
		require.Nil(t, plaintext)
	}

	otherKey, _ := testKeyAndNonce(t)
	plaintext, err := AESGCM{}.Decrypt(otherKey, nonce, ciphertext, tag)
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	require.Nil(t, plaintext)
}

func TestAESGCM_LengthPreconditions(t *testing.T) {
	key, nonce := testKeyAndNonce(t)
	ciphertext, tag, err := AESGCM{}.Encrypt(key, nonce, []byte("data"))
	require.NoError(t, err)

	_, _, err = AESGCM{}.Encrypt(key[:16], nonce, []byte("data"))
	require.ErrorIs(t, err, interfaces.ErrCrypto)

	_, _, err = AESGCM{}.Encrypt(key, make([]byte, 16), []byte("data"))
	require.ErrorIs(t, err, interfaces.ErrCrypto)

	_, err = AESGCM{}.Decrypt(key[:24], nonce, ciphertext, tag)
	require.ErrorIs(t, err, interfaces.ErrCrypto)

	_, err = AESGCM{}.Decrypt(key, nonce[:8], ciphertext, tag)
	require.ErrorIs(t, err, interfaces.ErrCrypto)

	_, err = AESGCM{}.Decrypt(key, nonce, ciphertext, tag[:12])
	require.ErrorIs(t, err, interfaces.ErrCrypto)
}

func TestSealSecret(t *testing.T) {
	wrappingKey, err := GenerateWrappingKey(2048)
	require.NoError(t, err)
	exported, err := wrappingKey.ExportPublicKey()
	require.NoError(t, err)

	envelope, err := SealSecret(exported, []byte("top-secret"))
	require.NoError(t, err)

	decoded, err := envelope.Decode()
	require.NoError(t, err)
	assert.Len(t, decoded.IV, GCMNonceSize)
	assert.Len(t, decoded.Tag, GCMTagSize)

	aesKey, err := wrappingKey.UnwrapKey(decoded.WrappedKey)
	require.NoError(t, err)

	plaintext, err := AESGCM{}.Decrypt(aesKey, decoded.IV, decoded.Ciphertext, decoded.Tag)
	require.NoError(t, err)
	assert.Equal(t, "top-secret", string(plaintext))

	_, err = SealSecret("bogus", []byte("x"))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}
