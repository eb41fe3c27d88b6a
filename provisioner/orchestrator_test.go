package provisioner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/tee-secret-agent/api/broker"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/evidence"
	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNonce = []byte(strings.Repeat("7", interfaces.NonceSize))

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sealingBroker releases a fixed secret sealed to the request's wrapping key.
type sealingBroker struct {
	secret  []byte
	nonce   []byte
	lastReq *interfaces.SecretKeyRequest

	// tamper, if set, modifies the envelope before it is returned.
	tamper func(*interfaces.SecretEnvelope)
}

func (b *sealingBroker) Version(ctx context.Context) (string, error) { return "test", nil }

func (b *sealingBroker) Nonce(ctx context.Context) ([]byte, error) { return b.nonce, nil }

func (b *sealingBroker) SecretKey(ctx context.Context, req *interfaces.SecretKeyRequest) (*interfaces.SecretEnvelope, error) {
	b.lastReq = req
	envelope, err := cryptoutils.SealSecret(req.WrappingKey, b.secret)
	if err != nil {
		return nil, err
	}
	if b.tamper != nil {
		b.tamper(envelope)
	}
	return envelope, nil
}

// MockCipher implements interfaces.SymmetricCipher for testing
type MockCipher struct {
	mock.Mock
}

func (m *MockCipher) Encrypt(key, nonce, plaintext []byte) ([]byte, []byte, error) {
	args := m.Called(key, nonce, plaintext)
	return args.Get(0).([]byte), args.Get(1).([]byte), args.Error(2)
}

func (m *MockCipher) Decrypt(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	args := m.Called(key, nonce, ciphertext, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func snpCollector(reports *evidence.MemoryReportInterface) *evidence.Collector {
	return evidence.NewCollector(reports, evidence.StaticPrivilegeLevel(0), testLogger())
}

func TestProvision_EndToEnd(t *testing.T) {
	b := &sealingBroker{secret: []byte("top-secret"), nonce: testNonce}
	reports := &evidence.MemoryReportInterface{Provider: "sev_guest", Report: []byte("REPORT")}

	p := &Provisioner{
		Broker:    b,
		Collector: snpCollector(reports),
		KeyID:     "disk-key",
		Log:       testLogger(),
	}

	secret, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("top-secret"), secret)

	require.NotNil(t, b.lastReq)
	assert.Equal(t, string(testNonce), b.lastReq.Nonce.String())
	assert.Equal(t, interfaces.TeeKindSEVSNP, b.lastReq.TeeKind)
	assert.Equal(t, "UkVQT1JU", b.lastReq.Evidence)
	assert.Equal(t, "disk-key", b.lastReq.KeyID)

	publicKey, err := cryptoutils.ParseExportedPublicKey(b.lastReq.WrappingKey)
	require.NoError(t, err)
	assert.Equal(t, cryptoutils.DefaultWrappingKeyBits, publicKey.N.BitLen())

	assert.Empty(t, reports.OpenScopes())
}

func TestProvision_NonceFailureAborts(t *testing.T) {
	mockBroker := &broker.MockBroker{}
	mockBroker.On("Version", mock.Anything).Return("test", nil)
	mockBroker.On("Nonce", mock.Anything).Return(nil, errors.New("connection reset"))

	reports := &evidence.MemoryReportInterface{Provider: "sev_guest", Report: []byte("REPORT")}
	p := &Provisioner{
		Broker:    mockBroker,
		Collector: snpCollector(reports),
		KeyID:     "disk-key",
		Log:       testLogger(),
	}

	secret, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrBroker)
	assert.Nil(t, secret)
	assert.Equal(t, StepNonce, FailedStep(err))
	assert.Equal(t, "BrokerError", interfaces.ErrorKind(err))

	mockBroker.AssertExpectations(t)
	mockBroker.AssertNotCalled(t, "SecretKey", mock.Anything, mock.Anything)
	assert.Equal(t, 0, reports.Opened())
}

func TestProvision_VersionFailureAborts(t *testing.T) {
	mockBroker := &broker.MockBroker{}
	mockBroker.On("Version", mock.Anything).Return("", errors.New("no route to host"))

	p := &Provisioner{
		Broker:    mockBroker,
		Collector: snpCollector(&evidence.MemoryReportInterface{Provider: "sev_guest"}),
		Log:       testLogger(),
	}

	_, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrBroker)
	assert.Equal(t, StepVersion, FailedStep(err))
	mockBroker.AssertNotCalled(t, "Nonce", mock.Anything)
}

func TestProvision_InvalidNonce(t *testing.T) {
	mockBroker := &broker.MockBroker{}
	mockBroker.On("Version", mock.Anything).Return("test", nil)
	mockBroker.On("Nonce", mock.Anything).Return([]byte("short"), nil)

	reports := &evidence.MemoryReportInterface{Provider: "sev_guest", Report: []byte("REPORT")}
	p := &Provisioner{
		Broker:    mockBroker,
		Collector: snpCollector(reports),
		Log:       testLogger(),
	}

	_, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrInvalidNonce)
	assert.Equal(t, 0, reports.Opened())
	mockBroker.AssertNotCalled(t, "SecretKey", mock.Anything, mock.Anything)
}

func TestProvision_EvidenceFailure(t *testing.T) {
	mockBroker := &broker.MockBroker{}
	mockBroker.On("Version", mock.Anything).Return("test", nil)
	mockBroker.On("Nonce", mock.Anything).Return(testNonce, nil)

	reports := &evidence.MemoryReportInterface{Provider: "arm_cca_guest", Report: []byte("REPORT")}
	p := &Provisioner{
		Broker:    mockBroker,
		Collector: snpCollector(reports),
		Log:       testLogger(),
	}

	_, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrUnsupportedPlatform)
	assert.Equal(t, StepEvidence, FailedStep(err))
	mockBroker.AssertNotCalled(t, "SecretKey", mock.Anything, mock.Anything)
}

func TestProvision_MalformedWrappedKey(t *testing.T) {
	b := &sealingBroker{
		secret: []byte("top-secret"),
		nonce:  testNonce,
		tamper: func(e *interfaces.SecretEnvelope) { e.WrappedKey = "not base64!" },
	}
	cipher := &MockCipher{}

	p := &Provisioner{
		Broker:    b,
		Collector: snpCollector(&evidence.MemoryReportInterface{Provider: "tdx_guest", Report: []byte("QUOTE")}),
		Cipher:    cipher,
		Log:       testLogger(),
	}

	_, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrMalformedEnvelope)
	assert.Equal(t, StepDecode, FailedStep(err))
	cipher.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvision_TamperedCiphertext(t *testing.T) {
	b := &sealingBroker{
		secret: []byte("top-secret"),
		nonce:  testNonce,
		tamper: func(e *interfaces.SecretEnvelope) { e.Tag = "AAAAAAAAAAAAAAAAAAAAAA==" },
	}

	p := &Provisioner{
		Broker:    b,
		Collector: snpCollector(&evidence.MemoryReportInterface{Provider: "tdx_guest", Report: []byte("QUOTE")}),
		Log:       testLogger(),
	}

	secret, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	assert.Nil(t, secret)
	assert.Equal(t, StepDecrypt, FailedStep(err))
}

func TestProvision_WrongWrappingKey(t *testing.T) {
	other, err := cryptoutils.GenerateWrappingKey(cryptoutils.DefaultWrappingKeyBits)
	require.NoError(t, err)
	otherPublic, err := other.ExportPublicKey()
	require.NoError(t, err)

	b := &sealingBroker{secret: []byte("top-secret"), nonce: testNonce}
	b.tamper = func(e *interfaces.SecretEnvelope) {
		resealed, err := cryptoutils.SealSecret(otherPublic, b.secret)
		require.NoError(t, err)
		e.WrappedKey = resealed.WrappedKey
	}

	p := &Provisioner{
		Broker:    b,
		Collector: snpCollector(&evidence.MemoryReportInterface{Provider: "tdx_guest", Report: []byte("QUOTE")}),
		Log:       testLogger(),
	}

	_, err = p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrCrypto)
	assert.Equal(t, StepUnwrap, FailedStep(err))
}

func TestProvision_InvalidKeyBits(t *testing.T) {
	mockBroker := &broker.MockBroker{}
	p := &Provisioner{
		Broker:    mockBroker,
		Collector: snpCollector(&evidence.MemoryReportInterface{}),
		KeyBits:   1024,
		Log:       testLogger(),
	}

	_, err := p.Provision(context.Background())
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	assert.Equal(t, StepWrappingKey, FailedStep(err))
	mockBroker.AssertNotCalled(t, "Version", mock.Anything)
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: StepEvidence, Err: interfaces.ErrEvidenceUnavailable}
	assert.Equal(t, "evidence: evidence unavailable", err.Error())
	assert.ErrorIs(t, err, interfaces.ErrEvidenceUnavailable)
	assert.Empty(t, FailedStep(errors.New("plain")))
}
