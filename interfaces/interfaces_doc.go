// Package interfaces defines the core types, error kinds and collaborator
// interfaces of the TEE secret provisioning agent.
//
// This package provides the contracts between the components of the agent
// without including implementation details, allowing for:
//
//   - Clear separation of concerns
//   - Multiple implementations of the same interface
//   - Better testability through mock implementations
//
// # Domain Types
//
//   - Nonce: 64-byte broker-issued freshness value
//   - TeeKind: closed set of TEE platform tags ("amd-sev-snp", "intel-tdx")
//   - AttestationReport: raw report bytes and their TeeKind
//   - SecretEnvelope / WrappedSecretEnvelope: wire and decoded forms of a delivered secret
//
// # Collaborators
//
//   - Broker: attestation and key-broker service (version, nonce, secret key)
//   - EvidenceCollector: produces an AttestationReport for a nonce
//   - SymmetricCipher: authenticated encryption of the secret payload
//   - SecretStore: key-ID addressed secret storage used by the development broker
//
// # Error Kinds
//
// Every failure is tagged with one sentinel error (ErrInvalidParameter,
// ErrInvalidNonce, ErrEvidenceUnavailable, ErrUnsupportedPlatform, ErrCrypto,
// ErrMalformedEnvelope, ErrBroker) wrapped with fmt.Errorf("%w: ..."), so
// callers can match with errors.Is. ErrorKind maps an error to its tag for
// operator-facing messages.
package interfaces
