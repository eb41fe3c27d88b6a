package api

// Broker API paths.
const (
	VersionPath   = "/version"
	NoncePath     = "/kb/v0/get_nonce"
	SecretKeyPath = "/kb/v0/get_secret"
)

// APIKeyHeader carries the broker API key on every request.
const APIKeyHeader = "X-API-KEY"

// VersionResponse is returned by GET /version.
type VersionResponse struct {
	Version string `json:"version"`
}

// NonceResponse is returned by GET /kb/v0/get_nonce.
type NonceResponse struct {
	// Nonce is the raw freshness value, expected to be exactly 64 characters.
	Nonce string `json:"nonce"`
}

// SecretKeyRequest is the body of POST /kb/v0/get_secret.
type SecretKeyRequest struct {
	// Nonce is the value previously obtained from the nonce endpoint.
	Nonce string `json:"nonce"`

	// TeeType is the TEE kind tag, amd-sev-snp or intel-tdx.
	TeeType string `json:"tee_type"`

	// TeeEvidence is the standard base64 encoding of the raw attestation report.
	TeeEvidence string `json:"tee_evidence"`

	// KeyID identifies the secret to release.
	KeyID string `json:"key_id"`

	// WrappingKey is the base64 DER PKCS#1 public key the secret key is wrapped to.
	WrappingKey string `json:"wrapping_key"`
}

// ErrorResponse is returned with non-200 statuses by the dev broker.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// EvidenceOutput is what `tas-agent evidence` prints.
type EvidenceOutput struct {
	TeeType      string         `json:"tee_type"`
	TeeEvidence  string         `json:"tee_evidence"`
	ReportData   string         `json:"report_data,omitempty"`
	Measurements map[int]string `json:"measurements,omitempty"`
}
