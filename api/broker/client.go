package broker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/tee-secret-agent/api"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/interfaces"
)

// DefaultTimeout bounds every broker request.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a broker response is read.
const maxResponseSize = 16 << 20

// ClientConfig configures the broker client.
type ClientConfig struct {
	// URI is the broker base URI, for example https://tas.example:5001
	URI string

	// APIKey is sent in the X-API-KEY header.
	APIKey string

	// RootCertPath optionally points to a PEM CA certificate trusted in
	// addition to the system pool.
	RootCertPath string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client talks to the key broker over its REST API.
type Client struct {
	uri    string
	apiKey string
	client *http.Client
}

var _ interfaces.Broker = (*Client)(nil)

// NewClient creates a broker client from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: broker URI is required", interfaces.ErrInvalidParameter)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.RootCertPath != "" {
		pool, err := cryptoutils.LoadRootCAs(cfg.RootCertPath)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return NewClientWithHTTP(cfg.URI, cfg.APIKey, &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}), nil
}

// NewClientWithHTTP creates a broker client that uses the given http.Client.
func NewClientWithHTTP(uri, apiKey string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		uri:    strings.TrimRight(uri, "/"),
		apiKey: apiKey,
		client: client,
	}
}

// Version queries the broker version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp api.VersionResponse
	if err := c.do(ctx, http.MethodGet, api.VersionPath, nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Nonce requests a fresh nonce. The value is returned as sent, unvalidated.
func (c *Client) Nonce(ctx context.Context) ([]byte, error) {
	var resp api.NonceResponse
	if err := c.do(ctx, http.MethodGet, api.NoncePath, nil, &resp); err != nil {
		return nil, err
	}
	return []byte(resp.Nonce), nil
}

// SecretKey submits evidence and the wrapping key and returns the wrapped secret.
func (c *Client) SecretKey(ctx context.Context, req *interfaces.SecretKeyRequest) (*interfaces.SecretEnvelope, error) {
	body := api.SecretKeyRequest{
		Nonce:       req.Nonce.String(),
		TeeType:     req.TeeKind.String(),
		TeeEvidence: req.Evidence,
		KeyID:       req.KeyID,
		WrappingKey: req.WrappingKey,
	}

	var resp interfaces.SecretEnvelope
	if err := c.do(ctx, http.MethodPost, api.SecretKeyPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.uri+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: could not initialize request: %v", interfaces.ErrBroker, err)
	}
	req.Header.Set(api.APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: could not request %s: %v", interfaces.ErrBroker, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: could not read %s response: %v", interfaces.ErrBroker, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d: %s", interfaces.ErrBroker, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("%w: could not parse %s response: %v", interfaces.ErrBroker, path, err)
	}
	return nil
}
