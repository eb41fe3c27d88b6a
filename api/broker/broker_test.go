package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-secret-agent/api"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/ruteri/tee-secret-agent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(t *testing.T) (*httptest.Server, *NonceStore) {
	t.Helper()

	store, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), "disk-key", []byte("top-secret")))

	nonces := NewNonceStore(time.Minute)
	handler := NewHandler(store, nonces, testAPIKey, "1.2.3", testLogger())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, nonces
}

func secretRequest(t *testing.T, nonce []byte, keyID string) (*interfaces.SecretKeyRequest, *cryptoutils.WrappingKey) {
	t.Helper()

	wrappingKey, err := cryptoutils.GenerateWrappingKey(cryptoutils.DefaultWrappingKeyBits)
	require.NoError(t, err)
	publicKey, err := wrappingKey.ExportPublicKey()
	require.NoError(t, err)

	n, err := interfaces.NewNonce(nonce)
	require.NoError(t, err)

	return &interfaces.SecretKeyRequest{
		Nonce:       n,
		Evidence:    base64.StdEncoding.EncodeToString([]byte("REPORT")),
		TeeKind:     interfaces.TeeKindSEVSNP,
		KeyID:       keyID,
		WrappingKey: publicKey,
	}, wrappingKey
}

func TestClient_FullExchange(t *testing.T) {
	ts, nonces := newTestBroker(t)
	ctx := context.Background()
	client := NewClientWithHTTP(ts.URL+"/", testAPIKey, ts.Client())

	version, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)

	nonce, err := client.Nonce(ctx)
	require.NoError(t, err)
	assert.Len(t, nonce, interfaces.NonceSize)

	req, wrappingKey := secretRequest(t, nonce, "disk-key")
	envelope, err := client.SecretKey(ctx, req)
	require.NoError(t, err)

	wrapped, err := envelope.Decode()
	require.NoError(t, err)
	key, err := wrappingKey.UnwrapKey(wrapped.WrappedKey)
	require.NoError(t, err)
	secret, err := cryptoutils.AESGCM{}.Decrypt(key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("top-secret"), secret)

	issued, redeemed := nonces.Stats()
	assert.Equal(t, uint64(1), issued)
	assert.Equal(t, uint64(1), redeemed)

	// Nonces are single use.
	_, err = client.SecretKey(ctx, req)
	assert.ErrorIs(t, err, interfaces.ErrBroker)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_WrongAPIKey(t *testing.T) {
	ts, _ := newTestBroker(t)
	client := NewClientWithHTTP(ts.URL, "wrong", ts.Client())

	_, err := client.Version(context.Background())
	require.ErrorIs(t, err, interfaces.ErrBroker)
	assert.Contains(t, err.Error(), "401")

	_, err = client.Nonce(context.Background())
	require.ErrorIs(t, err, interfaces.ErrBroker)
}

func TestClient_Unreachable(t *testing.T) {
	ts, _ := newTestBroker(t)
	url := ts.URL
	ts.Close()

	client := NewClientWithHTTP(url, testAPIKey, nil)
	_, err := client.Version(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrBroker)
}

func TestClient_InvalidJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.Header.Get(api.APIKeyHeader))
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()

	client := NewClientWithHTTP(ts.URL, testAPIKey, ts.Client())
	_, err := client.Nonce(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrBroker)
}

func TestClient_Canceled(t *testing.T) {
	ts, _ := newTestBroker(t)
	client := NewClientWithHTTP(ts.URL, testAPIKey, ts.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Version(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	_, err = NewClient(ClientConfig{URI: "https://tas.local", RootCertPath: "/nonexistent/root.pem"})
	assert.Error(t, err)

	client, err := NewClient(ClientConfig{URI: "https://tas.local/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://tas.local", client.uri)
	assert.Equal(t, DefaultTimeout, client.client.Timeout)
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	ts, _ := newTestBroker(t)
	ctx := context.Background()
	client := NewClientWithHTTP(ts.URL, testAPIKey, ts.Client())

	tests := []struct {
		name       string
		mutate     func(*api.SecretKeyRequest)
		wantStatus int
	}{
		{"unknown nonce", func(r *api.SecretKeyRequest) { r.Nonce = strings.Repeat("0", 64) }, http.StatusUnauthorized},
		{"unknown tee type", func(r *api.SecretKeyRequest) { r.TeeType = "arm-cca" }, http.StatusBadRequest},
		{"empty evidence", func(r *api.SecretKeyRequest) { r.TeeEvidence = "" }, http.StatusBadRequest},
		{"invalid evidence", func(r *api.SecretKeyRequest) { r.TeeEvidence = "!!" }, http.StatusBadRequest},
		{"invalid key id", func(r *api.SecretKeyRequest) { r.KeyID = "../etc/passwd" }, http.StatusBadRequest},
		{"unknown key id", func(r *api.SecretKeyRequest) { r.KeyID = "other-key" }, http.StatusNotFound},
		{"invalid wrapping key", func(r *api.SecretKeyRequest) { r.WrappingKey = "AAAA" }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce, err := client.Nonce(ctx)
			require.NoError(t, err)
			req, _ := secretRequest(t, nonce, "disk-key")

			body := api.SecretKeyRequest{
				Nonce:       req.Nonce.String(),
				TeeType:     req.TeeKind.String(),
				TeeEvidence: req.Evidence,
				KeyID:       req.KeyID,
				WrappingKey: req.WrappingKey,
			}
			tt.mutate(&body)

			data, err := json.Marshal(body)
			require.NoError(t, err)

			httpReq, err := http.NewRequest(http.MethodPost, ts.URL+api.SecretKeyPath, strings.NewReader(string(data)))
			require.NoError(t, err)
			httpReq.Header.Set(api.APIKeyHeader, testAPIKey)

			resp, err := ts.Client().Do(httpReq)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var errResp api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
			assert.NotEmpty(t, errResp.RequestID)
		})
	}
}

func TestNonceStore(t *testing.T) {
	store := NewNonceStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	first, err := store.Issue()
	require.NoError(t, err)
	second, err := store.Issue()
	require.NoError(t, err)

	assert.Len(t, first, interfaces.NonceSize)
	assert.NotEqual(t, first, second)

	assert.True(t, store.Redeem(first))
	assert.False(t, store.Redeem(first))
	assert.False(t, store.Redeem("unknown"))

	now = now.Add(2 * time.Minute)
	assert.False(t, store.Redeem(second))

	issued, redeemed := store.Stats()
	assert.Equal(t, uint64(2), issued)
	assert.Equal(t, uint64(1), redeemed)
}
