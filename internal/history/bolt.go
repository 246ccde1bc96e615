package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	entriesBucket  = "history"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// BoltSink persists entries in a bbolt file, keyed by sequence number. It
// keeps at most capacity entries; older ones are pruned on Add.
type BoltSink struct {
	db       *bbolt.DB
	capacity int
}

// NewBoltSink opens (or creates) the history file at path.
func NewBoltSink(path string, capacity int) (*BoltSink, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &BoltSink{db: db, capacity: capacity}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltSink) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return fmt.Errorf("failed to create history bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		return meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
	})
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Add implements Sink.
func (s *BoltSink) Add(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		if err := bucket.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to save history entry: %w", err)
		}

		if s.capacity <= 0 || seq <= uint64(s.capacity) {
			return nil
		}
		// keys below this sequence fall outside the window
		cutoff := seqKey(seq - uint64(s.capacity) + 1)
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent implements Sink.
func (s *BoltSink) Recent(n int) ([]Entry, error) {
	var out []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) == n {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal history entry: %w", err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database.
func (s *BoltSink) Close() error {
	return s.db.Close()
}
