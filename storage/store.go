// Package storage provides the key-value persistence layer that backs client
// session state. Values are grouped into buckets; the session layer uses one
// bucket per realm.
package storage

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in a bucket.
	ErrNotFound = errors.New("record not found")
	// ErrBucketNotFound is returned when a bucket has never been written.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrUnavailable is returned by stores that have no backing storage.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrWrongKey is returned when sealed records cannot be opened with the
	// configured key.
	ErrWrongKey = errors.New("wrong storage key")
)

// BatchTx provides writes within an atomic batch scoped to a single bucket.
// Deleting a missing key inside a batch is not an error.
type BatchTx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store defines the interface for bucketed key-value storage.
type Store interface {
	Put(bucket, key string, value []byte) error
	Get(bucket, key string) ([]byte, error)
	Delete(bucket, key string) error
	List(bucket string) ([]string, error)
	// Batch executes fn atomically: either every write in fn is applied or,
	// when fn returns an error, none are.
	Batch(bucket string, fn func(tx BatchTx) error) error
}

// Unavailable returns a Store for environments without persistent storage.
// Every operation fails with ErrUnavailable.
func Unavailable() Store {
	return unavailableStore{}
}

type unavailableStore struct{}

func (unavailableStore) Put(string, string, []byte) error           { return ErrUnavailable }
func (unavailableStore) Get(string, string) ([]byte, error)         { return nil, ErrUnavailable }
func (unavailableStore) Delete(string, string) error                { return ErrUnavailable }
func (unavailableStore) List(string) ([]string, error)              { return nil, ErrUnavailable }
func (unavailableStore) Batch(string, func(tx BatchTx) error) error { return ErrUnavailable }
