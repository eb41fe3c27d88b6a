package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ruteri/tee-secret-agent/interfaces"
)

const (
	// SymmetricKeySize is the AES-256 key length.
	SymmetricKeySize = 32

	// GCMNonceSize is the AES-GCM nonce length.
	GCMNonceSize = 12

	// GCMTagSize is the AES-GCM authentication tag length.
	GCMTagSize = 16
)

// AESGCM implements interfaces.SymmetricCipher with AES-256-GCM and a detached tag.
type AESGCM struct{}

var _ interfaces.SymmetricCipher = AESGCM{}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", interfaces.ErrCrypto, SymmetricKeySize, len(key))
	}
	if len(nonce) != GCMNonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", interfaces.ErrCrypto, GCMNonceSize, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", interfaces.ErrCrypto, err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", interfaces.ErrCrypto, err)
	}
	return aesGCM, nil
}

// Encrypt seals plaintext and returns the ciphertext and tag separately.
func (AESGCM) Encrypt(key, nonce, plaintext []byte) ([]byte, []byte, error) {
	aesGCM, err := newGCM(key, nonce)
	if err != nil {
		return nil, nil, err
	}

	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - GCMTagSize
	return sealed[:split], sealed[split:], nil
}

// Decrypt verifies the tag and returns the plaintext.
// No plaintext is returned unless the tag verifies.
func (AESGCM) Decrypt(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	aesGCM, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(tag) != GCMTagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", interfaces.ErrCrypto, GCMTagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt: %v", interfaces.ErrCrypto, err)
	}
	return plaintext, nil
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SealSecret encrypts a secret under a fresh AES key and wraps that key to the
// given exported wrapping key. The result is the envelope a broker returns.
func SealSecret(wrappingKey string, secret []byte) (*interfaces.SecretEnvelope, error) {
	publicKey, err := ParseExportedPublicKey(wrappingKey)
	if err != nil {
		return nil, err
	}

	key, err := RandomBytes(SymmetricKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	defer clear(key)

	iv, err := RandomBytes(GCMNonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext, tag, err := AESGCM{}.Encrypt(key, iv, secret)
	if err != nil {
		return nil, err
	}

	wrappedKey, err := WrapKey(publicKey, key)
	if err != nil {
		return nil, err
	}

	return &interfaces.SecretEnvelope{
		WrappedKey: base64.StdEncoding.EncodeToString(wrappedKey),
		Blob:       base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}, nil
}
