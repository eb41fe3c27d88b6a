package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var (
	// ErrSecretNotFound is returned when no secret is stored under the requested key ID.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidKeyID is returned for key IDs that cannot be used as a storage path.
	ErrInvalidKeyID = errors.New("invalid key id")
)

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKeyID checks that a key ID is safe to use as a file name or object key.
func ValidateKeyID(keyID string) error {
	if !keyIDPattern.MatchString(keyID) {
		return fmt.Errorf("%w: %q", ErrInvalidKeyID, keyID)
	}
	return nil
}

// StorageBackendLocation is a URI identifying a secret storage backend.
type StorageBackendLocation string

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return "", fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation(uri), nil
}

// SecretStore holds secrets addressed by key ID.
type SecretStore interface {
	// Fetch retrieves the secret stored under keyID.
	Fetch(ctx context.Context, keyID string) ([]byte, error)

	// Store saves a secret under keyID, replacing any previous value.
	Store(ctx context.Context, keyID string, secret []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}
