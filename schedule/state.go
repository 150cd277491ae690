package schedule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSeries = []byte("series")

// Record is the persisted state of one series
type Record struct {
	Name        string        `json:"name"`
	Period      time.Duration `json:"period"`
	Constraints Constraints   `json:"constraints"`
	NextRun     time.Time     `json:"next_run"`
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
	// Failures counts consecutive failed runs
	Failures int `json:"failures"`
}

// StateStore persists series state across restarts
type StateStore interface {
	Load(name string) (Record, bool, error)
	Save(rec Record) error
	Delete(name string) error
	Close() error
}

type boltStateStore struct {
	db *bolt.DB
}

// NewBoltStateStore opens (or creates) the state file at path
func NewBoltStateStore(path string) (StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ErrState("open", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ErrState("open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSeries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, ErrState("open", err)
	}
	return &boltStateStore{db: db}, nil
}

func (s *boltStateStore) Load(name string) (Record, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSeries).Get([]byte(name)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return Record{}, false, ErrState("load", err)
	}
	if data == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, ErrState("decode", err)
	}
	return rec, true, nil
}

func (s *boltStateStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return ErrState("encode", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeries).Put([]byte(rec.Name), data)
	})
	if err != nil {
		return ErrState("save", err)
	}
	return nil
}

func (s *boltStateStore) Delete(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeries).Delete([]byte(name))
	})
	if err != nil {
		return ErrState("delete", err)
	}
	return nil
}

func (s *boltStateStore) Close() error {
	return s.db.Close()
}

type memoryStateStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStateStore keeps state for the lifetime of the process only
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{records: make(map[string]Record)}
}

func (s *memoryStateStore) Load(name string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok, nil
}

func (s *memoryStateStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
	return nil
}

func (s *memoryStateStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *memoryStateStore) Close() error {
	return nil
}
