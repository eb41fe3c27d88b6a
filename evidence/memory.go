package evidence

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Operation names used as MemoryReportInterface.Failures keys.
const (
	OpOpen  = "open"
	OpClose = "close"
)

// ReadOp returns the failure key for reading slot.
func ReadOp(slot string) string { return "read:" + slot }

// WriteOp returns the failure key for writing slot.
func WriteOp(slot string) string { return "write:" + slot }

// SlotWrite records one WriteSlot call.
type SlotWrite struct {
	Scope string
	Slot  string
	Data  []byte
}

// MemoryReportInterface is an in-memory ReportInterface for tests and dry runs.
// It answers the provider slot with Provider and the outblob slot with Report.
type MemoryReportInterface struct {
	Provider string
	Report   []byte

	// Failures injects an error for an operation (OpOpen, OpClose, ReadOp(slot), WriteOp(slot)).
	Failures map[string]error

	// OnWrite, if set, is called for every slot write before it is applied.
	OnWrite func(scope, slot string, data []byte)

	mu      sync.Mutex
	counter int
	scopes  map[string]map[string][]byte
	writes  []SlotWrite
	opened  int
}

func (m *MemoryReportInterface) failure(op string) error {
	if m.Failures == nil {
		return nil
	}
	return m.Failures[op]
}

func (m *MemoryReportInterface) OpenTransaction() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpOpen); err != nil {
		return "", err
	}

	if m.scopes == nil {
		m.scopes = make(map[string]map[string][]byte)
	}
	m.counter++
	m.opened++
	scope := fmt.Sprintf("entry%06d", m.counter)
	m.scopes[scope] = map[string][]byte{
		SlotProvider: []byte(m.Provider + "\n"),
	}
	return scope, nil
}

func (m *MemoryReportInterface) ReadSlot(scope, slot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.scopes[scope]
	if !ok {
		return nil, os.ErrNotExist
	}
	if err := m.failure(ReadOp(slot)); err != nil {
		return nil, err
	}

	if slot == SlotOutblob {
		return bytes.Clone(m.Report), nil
	}

	data, ok := slots[slot]
	if !ok {
		return nil, os.ErrNotExist
	}
	return bytes.Clone(data), nil
}

func (m *MemoryReportInterface) WriteSlot(scope, slot string, data []byte) error {
	if m.OnWrite != nil {
		m.OnWrite(scope, slot, data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.scopes[scope]
	if !ok {
		return os.ErrNotExist
	}
	if err := m.failure(WriteOp(slot)); err != nil {
		return err
	}

	slots[slot] = bytes.Clone(data)
	m.writes = append(m.writes, SlotWrite{Scope: scope, Slot: slot, Data: bytes.Clone(data)})
	return nil
}

// CloseTransaction removes the scope. An injected close failure still removes
// it, matching a kernel that reports an error after tearing the entry down.
func (m *MemoryReportInterface) CloseTransaction(scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scopes[scope]; !ok {
		return os.ErrNotExist
	}
	delete(m.scopes, scope)

	return m.failure(OpClose)
}

// OpenScopes returns the scopes that are still open.
func (m *MemoryReportInterface) OpenScopes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	scopes := make([]string, 0, len(m.scopes))
	for s := range m.scopes {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// Opened returns how many transactions were ever opened.
func (m *MemoryReportInterface) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Writes returns all slot writes in order.
func (m *MemoryReportInterface) Writes() []SlotWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SlotWrite(nil), m.writes...)
}
