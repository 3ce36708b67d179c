package storage

import (
	"github.com/cuemby/taskmaster/pkg/types"
)

// Store is the opaque CRUD interface over the Master's persisted state:
// Node records and TaskInstance records, plus the Master's own RSA key
// material. Atomicity per record is assumed; the coordinator itself does
// not span a transaction across Store calls.
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// TaskInstances
	CreateTaskInstance(task *types.TaskInstance) error
	GetTaskInstance(id int64) (*types.TaskInstance, error)
	ListTaskInstances() ([]*types.TaskInstance, error)
	UpdateTaskInstance(task *types.TaskInstance) error
	NextTaskInstanceID() (int64, error)

	// Master key material, AES-GCM encrypted by the caller before storage.
	SaveMasterKey(data []byte) error
	GetMasterKey() ([]byte, error)

	Close() error
}
