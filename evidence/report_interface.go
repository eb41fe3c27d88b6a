package evidence

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
)

// DefaultReportRoot is the configfs-tsm directory that creates report transactions.
const DefaultReportRoot = "/sys/kernel/config/tsm/report"

// Slot names inside a report transaction.
const (
	SlotProvider  = "provider"
	SlotInblob    = "inblob"
	SlotPrivlevel = "privlevel"
	SlotOutblob   = "outblob"
)

// ReportInterface is the platform's transactional report-generation interface.
// A transaction is a uniquely named scope; configuration slots are written
// before the report slot is read, and the scope is closed afterwards.
type ReportInterface interface {
	// OpenTransaction creates a new exclusively owned scope and returns its name.
	OpenTransaction() (string, error)

	// ReadSlot reads a slot inside scope.
	ReadSlot(scope, slot string) ([]byte, error)

	// WriteSlot writes a slot inside scope.
	WriteSlot(scope, slot string, data []byte) error

	// CloseTransaction releases scope.
	CloseTransaction(scope string) error
}

// configfsClient is the subset of configfsi.Client used by ConfigFSReportInterface.
type configfsClient interface {
	MkdirTemp(dir, pattern string) (string, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, contents []byte) error
	RemoveAll(path string) error
}

// ConfigFSReportInterface drives the Linux configfs-tsm report interface.
// Each transaction is a directory created with MkdirTemp under Root.
type ConfigFSReportInterface struct {
	root string

	mu     sync.Mutex
	client configfsClient
}

// NewConfigFSReportInterface uses the go-configfs-tsm Linux client, created on first use.
func NewConfigFSReportInterface(root string) *ConfigFSReportInterface {
	if root == "" {
		root = DefaultReportRoot
	}
	return &ConfigFSReportInterface{root: root}
}

// NewDirReportInterface drives a report interface rooted at an arbitrary
// directory, such as an emulated report tree.
func NewDirReportInterface(root string) *ConfigFSReportInterface {
	return &ConfigFSReportInterface{root: root, client: dirClient{}}
}

func (r *ConfigFSReportInterface) getClient() (configfsClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := linuxtsm.MakeClient()
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Root returns the directory transactions are created in.
func (r *ConfigFSReportInterface) Root() string {
	return r.root
}

func (r *ConfigFSReportInterface) OpenTransaction() (string, error) {
	client, err := r.getClient()
	if err != nil {
		return "", err
	}
	return client.MkdirTemp(r.root, "entry")
}

func (r *ConfigFSReportInterface) ReadSlot(scope, slot string) ([]byte, error) {
	client, err := r.scopeClient(scope)
	if err != nil {
		return nil, err
	}
	return client.ReadFile(filepath.Join(scope, slot))
}

func (r *ConfigFSReportInterface) WriteSlot(scope, slot string, data []byte) error {
	client, err := r.scopeClient(scope)
	if err != nil {
		return err
	}
	return client.WriteFile(filepath.Join(scope, slot), data)
}

func (r *ConfigFSReportInterface) CloseTransaction(scope string) error {
	client, err := r.scopeClient(scope)
	if err != nil {
		return err
	}
	return client.RemoveAll(scope)
}

// scopeClient refuses scopes that were not created under the root.
func (r *ConfigFSReportInterface) scopeClient(scope string) (configfsClient, error) {
	if filepath.Dir(filepath.Clean(scope)) != filepath.Clean(r.root) {
		return nil, errors.New("scope is not a transaction of this report interface")
	}
	return r.getClient()
}

// dirClient implements configfsClient on a regular directory tree.
type dirClient struct{}

func (dirClient) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (dirClient) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (dirClient) WriteFile(name string, contents []byte) error {
	return os.WriteFile(name, contents, 0600)
}

func (dirClient) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
