package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ruteri/tee-secret-agent/interfaces"
)

// DefaultWrappingKeyBits is the modulus size used when none is configured.
const DefaultWrappingKeyBits = 2048

// WrappingKeySizes lists the accepted RSA modulus sizes.
var WrappingKeySizes = []int{2048, 3072, 4096}

// WrappingKey is an ephemeral RSA key pair used to receive a wrapped symmetric key.
// It is generated once per provisioning attempt and never persisted.
type WrappingKey struct {
	privateKey *rsa.PrivateKey
}

// GenerateWrappingKey creates a fresh RSA key pair of the given size.
func GenerateWrappingKey(bits int) (*WrappingKey, error) {
	if !slices.Contains(WrappingKeySizes, bits) {
		return nil, fmt.Errorf("%w: key bits must be one of %v, got %d", interfaces.ErrInvalidParameter, WrappingKeySizes, bits)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate wrapping key: %w", err)
	}

	return &WrappingKey{privateKey: privateKey}, nil
}

// Bits returns the modulus size of the key.
func (k *WrappingKey) Bits() int {
	if k.privateKey == nil {
		return 0
	}
	return k.privateKey.N.BitLen()
}

// ExportPublicKey returns the public key as base64 of its DER PKCS#1 encoding.
func (k *WrappingKey) ExportPublicKey() (string, error) {
	if k.privateKey == nil {
		return "", errors.New("wrapping key has been destroyed")
	}
	der := x509.MarshalPKCS1PublicKey(&k.privateKey.PublicKey)
	return base64.StdEncoding.EncodeToString(der), nil
}

// UnwrapKey decrypts a wrapped symmetric key with RSA-OAEP (SHA-256, empty label).
func (k *WrappingKey) UnwrapKey(wrapped []byte) ([]byte, error) {
	if k.privateKey == nil {
		return nil, fmt.Errorf("%w: wrapping key has been destroyed", interfaces.ErrCrypto)
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.privateKey, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not unwrap key: %v", interfaces.ErrCrypto, err)
	}
	return key, nil
}

// Destroy zeroes the private exponent and primes and drops the key.
// Copies held inside the standard library cannot be reached, so this is best effort.
func (k *WrappingKey) Destroy() {
	if k.privateKey == nil {
		return
	}

	zero := func(n *big.Int) {
		if n != nil {
			clear(n.Bits())
			n.SetInt64(0)
		}
	}

	zero(k.privateKey.D)
	for _, p := range k.privateKey.Primes {
		zero(p)
	}
	zero(k.privateKey.Precomputed.Dp)
	zero(k.privateKey.Precomputed.Dq)
	zero(k.privateKey.Precomputed.Qinv)
	k.privateKey = nil
}

// ParseExportedPublicKey reverses ExportPublicKey.
func ParseExportedPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapping key is not valid base64: %v", interfaces.ErrInvalidParameter, err)
	}

	publicKey, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapping key is not a PKCS#1 public key: %v", interfaces.ErrInvalidParameter, err)
	}

	if !slices.Contains(WrappingKeySizes, publicKey.N.BitLen()) {
		return nil, fmt.Errorf("%w: unsupported wrapping key size %d", interfaces.ErrInvalidParameter, publicKey.N.BitLen())
	}

	return publicKey, nil
}

// WrapKey encrypts a symmetric key to an exported wrapping public key.
// This is the broker side of UnwrapKey.
func WrapKey(publicKey *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not wrap key: %v", interfaces.ErrCrypto, err)
	}
	return wrapped, nil
}
