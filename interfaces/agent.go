package interfaces

import "context"

// SecretKeyRequest carries everything the broker needs to release a key.
type SecretKeyRequest struct {
	Nonce       Nonce
	Evidence    string
	TeeKind     TeeKind
	KeyID       string
	WrappingKey string
}

// SecretEnvelope is the wire form of a WrappedSecretEnvelope, every field standard base64.
type SecretEnvelope struct {
	WrappedKey string `json:"wrapped_key"`
	Blob       string `json:"blob"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
}

// Decode decodes every envelope field. Either all fields decode or none are returned.
func (e *SecretEnvelope) Decode() (*WrappedSecretEnvelope, error) {
	wrappedKey, err := DecodeEnvelopeField("wrapped_key", e.WrappedKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := DecodeEnvelopeField("blob", e.Blob)
	if err != nil {
		return nil, err
	}
	iv, err := DecodeEnvelopeField("iv", e.IV)
	if err != nil {
		return nil, err
	}
	tag, err := DecodeEnvelopeField("tag", e.Tag)
	if err != nil {
		return nil, err
	}

	return &WrappedSecretEnvelope{
		WrappedKey: wrappedKey,
		Ciphertext: ciphertext,
		IV:         iv,
		Tag:        tag,
	}, nil
}

// Broker is the attestation and key-broker service the agent talks to.
type Broker interface {
	// Version queries the broker version, used as a liveness check.
	Version(ctx context.Context) (string, error)

	// Nonce requests a fresh nonce. The returned value is unvalidated.
	Nonce(ctx context.Context) ([]byte, error)

	// SecretKey submits evidence and returns the wrapped secret.
	SecretKey(ctx context.Context, req *SecretKeyRequest) (*SecretEnvelope, error)
}

// EvidenceCollector produces an attestation report bound to a nonce.
type EvidenceCollector interface {
	Collect(ctx context.Context, nonce []byte) (*AttestationReport, error)
}

// SymmetricCipher performs authenticated encryption of secret payloads.
type SymmetricCipher interface {
	Encrypt(key, nonce, plaintext []byte) (ciphertext []byte, tag []byte, err error)
	Decrypt(key, nonce, ciphertext, tag []byte) ([]byte, error)
}
