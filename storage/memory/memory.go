// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmcleod/portalauth/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
// Contents are lost when the process exits; suitable for tests and
// short-lived tools that should not leave a session behind.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (s *Store) Put(bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, key, value)
	return nil
}

func (s *Store) putLocked(bucket, key string, value []byte) {
	if _, ok := s.data[bucket]; !ok {
		s.data[bucket] = make(map[string][]byte)
	}
	s.data[bucket][key] = cloneValue(value)
}

func (s *Store) Get(bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[bucket]
	if !ok {
		return nil, fmt.Errorf("%s: %w", bucket, storage.ErrBucketNotFound)
	}
	v, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	return cloneValue(v), nil
}

func (s *Store) Delete(bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[bucket]
	if !ok {
		return fmt.Errorf("%s: %w", bucket, storage.ErrBucketNotFound)
	}
	if _, ok := b[key]; !ok {
		return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	delete(b, key)
	return nil
}

// List returns the keys of a bucket in lexical order. A missing bucket
// yields an empty list.
func (s *Store) List(bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[bucket]))
	for k := range s.data[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Batch executes fn under the store lock. On error, all writes are rolled back.
func (s *Store) Batch(bucket string, fn func(tx storage.BatchTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotBucket(bucket)
	if err := fn(&memoryBatchTx{store: s, bucket: bucket}); err != nil {
		s.restoreBucket(bucket, snapshot)
		return err
	}
	return nil
}

func (s *Store) snapshotBucket(bucket string) map[string][]byte {
	original, ok := s.data[bucket]
	if !ok {
		return nil
	}
	cp := make(map[string][]byte, len(original))
	for k, v := range original {
		cp[k] = cloneValue(v)
	}
	return cp
}

func (s *Store) restoreBucket(bucket string, snapshot map[string][]byte) {
	if snapshot == nil {
		delete(s.data, bucket)
		return
	}
	s.data[bucket] = snapshot
}

type memoryBatchTx struct {
	store  *Store
	bucket string
}

func (tx *memoryBatchTx) Put(key string, value []byte) error {
	tx.store.putLocked(tx.bucket, key, value)
	return nil
}

func (tx *memoryBatchTx) Delete(key string) error {
	if b, ok := tx.store.data[tx.bucket]; ok {
		delete(b, key)
	}
	return nil
}
