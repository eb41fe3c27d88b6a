package broker

import (
	"context"

	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockBroker implements interfaces.Broker for tests.
type MockBroker struct {
	mock.Mock
}

var _ interfaces.Broker = (*MockBroker)(nil)

func (m *MockBroker) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBroker) Nonce(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBroker) SecretKey(ctx context.Context, req *interfaces.SecretKeyRequest) (*interfaces.SecretEnvelope, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.SecretEnvelope), args.Error(1)
}
