package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/interfaces"
)

// Step names reported in StepError.
const (
	StepWrappingKey = "wrapping-key"
	StepVersion     = "version"
	StepNonce       = "nonce"
	StepEvidence    = "evidence"
	StepSecretKey   = "secret-key"
	StepDecode      = "decode-envelope"
	StepUnwrap      = "unwrap-key"
	StepDecrypt     = "decrypt"
)

// StepError names the provisioning step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step name of the first StepError in err's chain, if any.
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// Provisioner runs a single secret provisioning attempt against a broker.
type Provisioner struct {
	Broker    interfaces.Broker
	Collector interfaces.EvidenceCollector

	// Cipher defaults to AES-256-GCM.
	Cipher interfaces.SymmetricCipher

	// KeyBits defaults to cryptoutils.DefaultWrappingKeyBits.
	KeyBits int
	KeyID   string

	Log *slog.Logger
}

func fail(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// Provision obtains the secret identified by KeyID.
//
// Steps run strictly in order and the first failure aborts the attempt.
// Neither the private wrapping key nor the unwrapped key outlive the call.
func (p *Provisioner) Provision(ctx context.Context) ([]byte, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("key_id", p.KeyID)

	cipher := p.Cipher
	if cipher == nil {
		cipher = cryptoutils.AESGCM{}
	}

	bits := p.KeyBits
	if bits == 0 {
		bits = cryptoutils.DefaultWrappingKeyBits
	}

	wrappingKey, err := cryptoutils.GenerateWrappingKey(bits)
	if err != nil {
		return nil, fail(StepWrappingKey, err)
	}
	defer wrappingKey.Destroy()

	publicKey, err := wrappingKey.ExportPublicKey()
	if err != nil {
		return nil, fail(StepWrappingKey, err)
	}
	log.Debug("Generated wrapping key", "bits", bits, "public_key", publicKey)

	version, err := p.Broker.Version(ctx)
	if err != nil {
		return nil, fail(StepVersion, brokerError(err))
	}
	log.Info("Connected to broker", "version", version)

	rawNonce, err := p.Broker.Nonce(ctx)
	if err != nil {
		return nil, fail(StepNonce, brokerError(err))
	}

	nonce, err := interfaces.NewNonce(rawNonce)
	if err != nil {
		return nil, fail(StepNonce, err)
	}
	log.Debug("Received broker nonce", "nonce", nonce.String())

	report, err := p.Collector.Collect(ctx, nonce[:])
	if err != nil {
		return nil, fail(StepEvidence, err)
	}
	log.Info("Collected evidence", "tee_type", report.Kind, "report_size", len(report.Raw))

	envelope, err := p.Broker.SecretKey(ctx, &interfaces.SecretKeyRequest{
		Nonce:       nonce,
		Evidence:    report.Encoded(),
		TeeKind:     report.Kind,
		KeyID:       p.KeyID,
		WrappingKey: publicKey,
	})
	if err != nil {
		return nil, fail(StepSecretKey, brokerError(err))
	}

	wrapped, err := envelope.Decode()
	if err != nil {
		return nil, fail(StepDecode, err)
	}

	key, err := wrappingKey.UnwrapKey(wrapped.WrappedKey)
	if err != nil {
		return nil, fail(StepUnwrap, err)
	}
	defer clear(key)

	secret, err := cipher.Decrypt(key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag)
	if err != nil {
		return nil, fail(StepDecrypt, err)
	}

	log.Info("Secret provisioned", "secret_size", len(secret))
	return secret, nil
}

// brokerError makes sure a broker failure carries ErrBroker.
func brokerError(err error) error {
	if errors.Is(err, interfaces.ErrBroker) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", interfaces.ErrBroker, err)
}
