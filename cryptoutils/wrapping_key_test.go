package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWrappingKey(t *testing.T) {
	for _, bits := range WrappingKeySizes {
		if testing.Short() && bits > 2048 {
			continue
		}

		t.Run(fmt.Sprintf("%d", bits), func(t *testing.T) {
			key, err := GenerateWrappingKey(bits)
			require.NoError(t, err)
			assert.Equal(t, bits, key.Bits())

			exported, err := key.ExportPublicKey()
			require.NoError(t, err)

			again, err := key.ExportPublicKey()
			require.NoError(t, err)
			assert.Equal(t, exported, again)

			publicKey, err := ParseExportedPublicKey(exported)
			require.NoError(t, err)
			assert.Equal(t, bits, publicKey.N.BitLen())
		})
	}
}

func TestGenerateWrappingKey_InvalidSize(t *testing.T) {
	for _, bits := range []int{0, 512, 1024, 2047, 2049, 8192} {
		key, err := GenerateWrappingKey(bits)
		require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
		assert.Nil(t, key)
	}
}

func TestWrapUnwrap(t *testing.T) {
	key, err := GenerateWrappingKey(2048)
	require.NoError(t, err)

	exported, err := key.ExportPublicKey()
	require.NoError(t, err)
	publicKey, err := ParseExportedPublicKey(exported)
	require.NoError(t, err)

	aesKey, err := RandomBytes(SymmetricKeySize)
	require.NoError(t, err)

	wrapped, err := WrapKey(publicKey, aesKey)
	require.NoError(t, err)

	unwrapped, err := key.UnwrapKey(wrapped)
	require.NoError(t, err)
	assert.Equal(t, aesKey, unwrapped)
}

func TestUnwrap_Failures(t *testing.T) {
	key, err := GenerateWrappingKey(2048)
	require.NoError(t, err)

	other, err := GenerateWrappingKey(2048)
	require.NoError(t, err)

	// Wrapped to a different key
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &other.privateKey.PublicKey, []byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)
	out, err := key.UnwrapKey(wrapped)
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	assert.Nil(t, out)

	// PKCS#1 v1.5 padding instead of OAEP
	wrapped, err = rsa.EncryptPKCS1v15(rand.Reader, &key.privateKey.PublicKey, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	out, err = key.UnwrapKey(wrapped)
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	assert.Nil(t, out)

	// Garbage
	out, err = key.UnwrapKey([]byte("garbage"))
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	assert.Nil(t, out)
}

func TestDestroy(t *testing.T) {
	key, err := GenerateWrappingKey(2048)
	require.NoError(t, err)

	exported, err := key.ExportPublicKey()
	require.NoError(t, err)
	publicKey, err := ParseExportedPublicKey(exported)
	require.NoError(t, err)
	wrapped, err := WrapKey(publicKey, []byte("key"))
	require.NoError(t, err)

	d := key.privateKey.D
	key.Destroy()
	assert.Equal(t, 0, d.Sign())

	_, err = key.UnwrapKey(wrapped)
	require.ErrorIs(t, err, interfaces.ErrCrypto)

	_, err = key.ExportPublicKey()
	require.Error(t, err)

	// Idempotent
	key.Destroy()
}

func TestParseExportedPublicKey_Invalid(t *testing.T) {
	_, err := ParseExportedPublicKey("not base64!")
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	_, err = ParseExportedPublicKey(base64.StdEncoding.EncodeToString([]byte("not der")))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}
