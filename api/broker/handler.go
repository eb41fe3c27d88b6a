package broker

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/tee-secret-agent/api"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/interfaces"
)

// maxRequestSize caps secret request bodies. Reports are a few kilobytes.
const maxRequestSize = 1 << 20

// Handler serves the broker API for development and testing.
//
// It checks the API key, nonce freshness and the shape of the request, but it
// does NOT verify the attestation evidence. Any well-formed report of a known
// TEE kind is accepted.
type Handler struct {
	store   interfaces.SecretStore
	nonces  *NonceStore
	apiKey  string
	version string
	log     *slog.Logger
}

// NewHandler creates a broker handler releasing secrets from store.
func NewHandler(store interfaces.SecretStore, nonces *NonceStore, apiKey, version string, log *slog.Logger) *Handler {
	if nonces == nil {
		nonces = NewNonceStore(DefaultNonceTTL)
	}
	return &Handler{
		store:   store,
		nonces:  nonces,
		apiKey:  apiKey,
		version: version,
		log:     log,
	}
}

// RegisterRoutes mounts the broker API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Get(api.VersionPath, h.HandleVersion)
		r.Get(api.NoncePath, h.HandleNonce)
		r.Post(api.SecretKeyPath, h.HandleSecretKey)
	})
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(api.APIKeyHeader)
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "", errors.New("invalid api key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleVersion returns the broker version.
func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, api.VersionResponse{Version: h.version})
}

// HandleNonce issues a single-use nonce.
func (h *Handler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.nonces.Issue()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "", fmt.Errorf("could not generate nonce: %w", err))
		return
	}
	h.writeJSON(w, api.NonceResponse{Nonce: nonce})
}

// HandleSecretKey releases the secret for key_id, sealed to the request's wrapping key.
//
// URL format: POST /kb/v0/get_secret
// Request body: api.SecretKeyRequest
// Response: interfaces.SecretEnvelope
func (h *Handler) HandleSecretKey(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := h.log.With("request_id", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, requestID, fmt.Errorf("could not read request: %w", err))
		return
	}

	var req api.SecretKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, requestID, fmt.Errorf("could not parse request: %w", err))
		return
	}

	if !h.nonces.Redeem(req.Nonce) {
		h.writeError(w, http.StatusUnauthorized, requestID, errors.New("unknown or expired nonce"))
		return
	}

	kind := interfaces.TeeKind(req.TeeType)
	if kind != interfaces.TeeKindSEVSNP && kind != interfaces.TeeKindTDX {
		h.writeError(w, http.StatusBadRequest, requestID, fmt.Errorf("unsupported tee_type %q", req.TeeType))
		return
	}

	evidence, err := base64.StdEncoding.DecodeString(req.TeeEvidence)
	if err != nil || len(evidence) == 0 {
		h.writeError(w, http.StatusBadRequest, requestID, errors.New("tee_evidence must be non-empty base64"))
		return
	}

	if err := interfaces.ValidateKeyID(req.KeyID); err != nil {
		h.writeError(w, http.StatusBadRequest, requestID, err)
		return
	}

	log = log.With("key_id", req.KeyID, "tee_type", kind)
	log.Warn("Releasing secret without verifying evidence", "evidence_size", len(evidence))

	secret, err := h.store.Fetch(r.Context(), req.KeyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSecretNotFound) {
			h.writeError(w, http.StatusNotFound, requestID, fmt.Errorf("unknown key_id %s", req.KeyID))
			return
		}
		log.Error("Could not fetch secret", "err", err, "store", h.store.Name())
		h.writeError(w, http.StatusInternalServerError, requestID, errors.New("could not fetch secret"))
		return
	}

	envelope, err := cryptoutils.SealSecret(req.WrappingKey, secret)
	clear(secret)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidParameter) {
			h.writeError(w, http.StatusBadRequest, requestID, err)
			return
		}
		log.Error("Could not seal secret", "err", err)
		h.writeError(w, http.StatusInternalServerError, requestID, errors.New("could not seal secret"))
		return
	}

	log.Info("Secret released")
	h.writeJSON(w, envelope)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("could not encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, requestID string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(api.ErrorResponse{Error: err.Error(), RequestID: requestID}); encErr != nil {
		h.log.Error("could not encode error response", "err", encErr)
	}
}
