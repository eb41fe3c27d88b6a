package interfaces

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// NonceSize is the length of a broker-issued freshness nonce in bytes.
const NonceSize = 64

// Nonce is a broker-issued freshness value echoed into the attestation report.
type Nonce [NonceSize]byte

// NewNonce validates raw nonce bytes as returned by the broker.
// Surrounding double quotes are stripped before the length check; the
// remaining value must be exactly NonceSize bytes. Nothing is truncated or padded.
func NewNonce(raw []byte) (Nonce, error) {
	trimmed := strings.Trim(string(raw), `"`)
	if len(trimmed) != NonceSize {
		return Nonce{}, fmt.Errorf("%w: must be exactly %d bytes long, got %d", ErrInvalidNonce, NonceSize, len(trimmed))
	}

	var nonce Nonce
	copy(nonce[:], trimmed)
	return nonce, nil
}

// String returns the nonce as it is sent back to the broker.
func (n Nonce) String() string {
	return string(n[:])
}

// TeeKind identifies the trusted execution environment that produced a report.
type TeeKind string

const (
	TeeKindSEVSNP TeeKind = "amd-sev-snp"
	TeeKindTDX    TeeKind = "intel-tdx"
)

// String returns the broker-facing type tag.
func (k TeeKind) String() string {
	return string(k)
}

// AttestationReport is the hardware-signed evidence produced for a single nonce.
type AttestationReport struct {
	Raw  []byte
	Kind TeeKind
}

// Encoded returns the standard base64 encoding of the raw report.
func (r *AttestationReport) Encoded() string {
	return base64.StdEncoding.EncodeToString(r.Raw)
}

// WrappedSecretEnvelope is the decoded secret delivered by the broker.
type WrappedSecretEnvelope struct {
	// WrappedKey is the AES key encrypted to the ephemeral wrapping key
	WrappedKey []byte

	// Ciphertext is the encrypted secret payload, without the tag
	Ciphertext []byte

	// IV is the AES-GCM nonce
	IV []byte

	// Tag is the AES-GCM authentication tag
	Tag []byte
}

// DecodeEnvelopeField decodes a single standard-base64 envelope field.
// Empty and undecodable values are rejected.
func DecodeEnvelopeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: field %s is empty", ErrMalformedEnvelope, name)
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedEnvelope, name, err)
	}
	return decoded, nil
}

// ErrorKind returns the kind tag of the first provisioning error kind found in err's chain.
// Errors outside of the known kinds are tagged "Internal".
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.tag
		}
	}
	return "Internal"
}
