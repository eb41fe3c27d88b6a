// Package cryptoutils provides the cryptographic operations used to recover a
// secret released by the attestation broker.
//
// Two primitives are combined:
//
//   - An ephemeral RSA wrapping key (2048, 3072 or 4096 bits) generated once
//     per provisioning attempt. Only the public half leaves the process,
//     exported as base64 of its DER PKCS#1 encoding. The broker encrypts a
//     per-request AES key to it with RSA-OAEP and SHA-256.
//   - AES-256-GCM with a 12-byte nonce and a detached 16-byte tag for the
//     secret payload. Decrypt never returns plaintext unless the tag verifies.
//
// # Key Functions
//
//   - GenerateWrappingKey, WrappingKey.UnwrapKey: agent side of the key exchange
//   - WrapKey, SealSecret: broker side, used by the development broker and tests
//   - AESGCM.Encrypt, AESGCM.Decrypt: authenticated payload encryption
//
// # Wire Format
//
// A sealed secret is carried as four standard base64 fields:
//
//	{"wrapped_key": ..., "blob": ..., "iv": ..., "tag": ...}
//
// Where:
//   - wrapped_key: RSA-OAEP(SHA-256) encryption of the 32-byte AES key
//   - blob: AES-256-GCM ciphertext without the tag
//   - iv: 12-byte GCM nonce
//   - tag: 16-byte GCM tag
//
// # Security Considerations
//
//   - The wrapping key is never persisted; WrappingKey.Destroy zeroes the
//     private exponent and primes on a best-effort basis
//   - Errors are tagged interfaces.ErrCrypto and carry no key material
//   - InspectTDXQuote decodes a quote for operators; it does not verify it
//
// # Usage Example
//
//	wrappingKey, err := cryptoutils.GenerateWrappingKey(2048)
//	if err != nil {
//	    return err
//	}
//	defer wrappingKey.Destroy()
//
//	exported, _ := wrappingKey.ExportPublicKey()
//	// send exported to the broker, receive envelope
//
//	aesKey, err := wrappingKey.UnwrapKey(envelope.WrappedKey)
//	if err != nil {
//	    return err
//	}
//	secret, err := cryptoutils.AESGCM{}.Decrypt(aesKey, envelope.IV, envelope.Ciphertext, envelope.Tag)
package cryptoutils
