package broker

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// DefaultNonceTTL is how long an issued nonce can be redeemed.
const DefaultNonceTTL = 5 * time.Minute

// NonceStore issues single-use nonces that expire after a TTL.
type NonceStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time

	issued   atomic.Uint64
	redeemed atomic.Uint64
}

// NewNonceStore creates a nonce store. A zero ttl uses DefaultNonceTTL.
func NewNonceStore(ttl time.Duration) *NonceStore {
	if ttl == 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceStore{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
}

// Issue returns a new nonce of 64 hex characters.
func (s *NonceStore) Issue() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(raw[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	s.pending[nonce] = s.now().Add(s.ttl)
	s.issued.Inc()
	return nonce, nil
}

// Redeem consumes nonce. It reports false for unknown, reused or expired nonces.
func (s *NonceStore) Redeem(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.pending[nonce]
	if !ok {
		return false
	}
	delete(s.pending, nonce)

	if s.now().After(expiry) {
		return false
	}
	s.redeemed.Inc()
	return true
}

// Stats returns how many nonces were issued and redeemed.
func (s *NonceStore) Stats() (issued, redeemed uint64) {
	return s.issued.Load(), s.redeemed.Load()
}

func (s *NonceStore) expireLocked() {
	now := s.now()
	for nonce, expiry := range s.pending {
		if now.After(expiry) {
			delete(s.pending, nonce)
		}
	}
}
