package session

import (
	"errors"
	"log/slog"

	"github.com/jmcleod/portalauth/storage"
)

// Storage keys written per realm bucket.
const (
	KeyToken       = "token"
	KeyTokenType   = "tokenType"
	KeyUserID      = "userId"
	KeyUsername    = "username"
	KeyUserRole    = "userRole"
	KeyLoginTime   = "loginTime"
	KeyTokenExpiry = "tokenExpiry"

	KeyEmployeeName       = "employeeName"
	KeyEmployeeEmail      = "employeeEmail"
	KeyEmployeeDepartment = "employeeDepartment"
	KeyOrganizationName   = "organizationName"
)

var sessionKeys = []string{
	KeyToken, KeyTokenType, KeyUserID, KeyUsername, KeyUserRole, KeyLoginTime, KeyTokenExpiry,
}

var profileKeys = []string{
	KeyEmployeeName, KeyEmployeeEmail, KeyEmployeeDepartment, KeyOrganizationName,
}

// TokenStore persists a realm's session fields as string values in a single
// storage bucket. Missing keys and unavailable storage read as absent; they
// are never reported as errors.
type TokenStore struct {
	store  storage.Store
	bucket string
	logger *slog.Logger
}

// NewTokenStore returns a TokenStore over bucket in store. A nil store
// behaves like storage that is unavailable.
func NewTokenStore(store storage.Store, bucket string, logger *slog.Logger) *TokenStore {
	if store == nil {
		store = storage.Unavailable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{store: store, bucket: bucket, logger: logger}
}

func (ts *TokenStore) report(op, key string, err error) {
	if errors.Is(err, storage.ErrUnavailable) {
		ts.logger.Debug("token store unavailable", "op", op, "bucket", ts.bucket, "key", key)
		return
	}
	ts.logger.Warn("token store operation failed", "op", op, "bucket", ts.bucket, "key", key, "error", err)
}

// Write stores value under key. Failures are logged, not returned.
func (ts *TokenStore) Write(key, value string) {
	if err := ts.store.Put(ts.bucket, key, []byte(value)); err != nil {
		ts.report("write", key, err)
	}
}

// Read returns the value stored under key, or false when it is absent.
func (ts *TokenStore) Read(key string) (string, bool) {
	v, err := ts.store.Get(ts.bucket, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrBucketNotFound) {
			ts.report("read", key, err)
		}
		return "", false
	}
	return string(v), true
}

// Remove deletes key. Removing an absent key is a no-op.
func (ts *TokenStore) Remove(key string) {
	err := ts.store.Delete(ts.bucket, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrBucketNotFound) {
		ts.report("remove", key, err)
	}
}

// Clear removes every session and profile key in one batch.
func (ts *TokenStore) Clear() error {
	err := ts.store.Batch(ts.bucket, func(tx storage.BatchTx) error {
		for _, k := range append(sessionKeys[:len(sessionKeys):len(sessionKeys)], profileKeys...) {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, storage.ErrUnavailable) {
		ts.report("clear", "", err)
		return nil
	}
	return err
}

// WriteAll stores every entry of values in one batch. Either all values are
// written or none are.
func (ts *TokenStore) WriteAll(values map[string]string) error {
	return ts.store.Batch(ts.bucket, func(tx storage.BatchTx) error {
		for k, v := range values {
			if err := tx.Put(k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace atomically swaps the stored session for values: every known
// session and profile key absent from values is removed in the same batch.
func (ts *TokenStore) Replace(values map[string]string) error {
	return ts.store.Batch(ts.bucket, func(tx storage.BatchTx) error {
		for _, k := range append(sessionKeys[:len(sessionKeys):len(sessionKeys)], profileKeys...) {
			if _, ok := values[k]; ok {
				continue
			}
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		for k, v := range values {
			if err := tx.Put(k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}
