package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/taskmaster/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes    = []byte("nodes")
	bucketTasks    = []byte("task_instances")
	bucketMeta     = []byte("meta")
	keyMasterKey   = []byte("master_key")
	keyTaskInstSeq = []byte("task_instance_seq")
)

// BoltStore implements Store using an embedded bbolt database, one bucket
// per entity type, JSON-encoded records.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "taskmaster.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketTasks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Node operations

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node not found: %s", id)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node) // upsert
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.Delete([]byte(id))
	})
}

// TaskInstance operations

func taskInstanceKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func (s *BoltStore) CreateTaskInstance(task *types.TaskInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put(taskInstanceKey(task.ID), data)
	})
}

func (s *BoltStore) GetTaskInstance(id int64) (*types.TaskInstance, error) {
	var task types.TaskInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get(taskInstanceKey(id))
		if data == nil {
			return fmt.Errorf("task instance not found: %d", id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTaskInstances() ([]*types.TaskInstance, error) {
	var tasks []*types.TaskInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.TaskInstance
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) UpdateTaskInstance(task *types.TaskInstance) error {
	return s.CreateTaskInstance(task) // upsert
}

// NextTaskInstanceID atomically increments and returns the task instance
// sequence counter kept in the meta bucket.
func (s *BoltStore) NextTaskInstanceID() (int64, error) {
	var next int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		data := b.Get(keyTaskInstSeq)
		var cur uint64
		if data != nil {
			cur = binary.BigEndian.Uint64(data)
		}
		cur++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, cur)
		if err := b.Put(keyTaskInstSeq, buf); err != nil {
			return err
		}
		next = int64(cur)
		return nil
	})
	return next, err
}

// Master key material

func (s *BoltStore) SaveMasterKey(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		return b.Put(keyMasterKey, data)
	})
}

func (s *BoltStore) GetMasterKey() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		v := b.Get(keyMasterKey)
		if v == nil {
			return fmt.Errorf("master key not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
