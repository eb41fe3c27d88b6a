package interfaces

import "errors"

var (
	// ErrInvalidParameter is returned for unsupported key sizes and similar caller mistakes.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidNonce is returned when a nonce is not exactly NonceSize bytes long.
	ErrInvalidNonce = errors.New("invalid nonce")

	// ErrEvidenceUnavailable is returned when the platform report interface is
	// inaccessible or produces no report.
	ErrEvidenceUnavailable = errors.New("evidence unavailable")

	// ErrUnsupportedPlatform is returned when the report provider is not a known TEE kind.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrCrypto is returned for unwrap and decrypt failures, including tag mismatches.
	ErrCrypto = errors.New("crypto error")

	// ErrMalformedEnvelope is returned when a secret envelope cannot be decoded.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrBroker is returned when the attestation broker cannot be reached or rejects a request.
	ErrBroker = errors.New("broker error")
)

var errorKinds = []struct {
	err error
	tag string
}{
	{ErrInvalidParameter, "InvalidParameter"},
	{ErrInvalidNonce, "InvalidNonce"},
	{ErrEvidenceUnavailable, "EvidenceUnavailable"},
	{ErrUnsupportedPlatform, "UnsupportedPlatform"},
	{ErrCrypto, "CryptoError"},
	{ErrMalformedEnvelope, "MalformedEnvelope"},
	{ErrBroker, "BrokerError"},
}
