package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/portalauth/internal/util"
)

const (
	metaBucket   = "__portalauth"
	saltKey      = "kdf_salt"
	paramsKey    = "kdf_params"
	canaryKey    = "kdf_canary"
	canaryAAD    = "portalauth:canary:v1"
	canaryText   = "portalauth"
	saltSize     = 16
	valueAADSep  = "/"
	valueAADHead = "portalauth:value:"
)

// SealedStore wraps another Store and encrypts every value at rest with a
// key derived from an operator passphrase. Keys and bucket names are stored
// in the clear; only values are sealed. The derived key lives in a memguard
// Enclave and is only decrypted for the duration of a single operation.
type SealedStore struct {
	inner Store
	key   *memguard.Enclave
}

var _ Store = (*SealedStore)(nil)

// SealOption configures a SealedStore.
type SealOption func(*sealOptions)

type sealOptions struct {
	params util.Argon2idParams
}

// WithKDFParams overrides the Argon2id parameters used when the store is
// initialized for the first time. An existing store keeps the parameters it
// was created with.
func WithKDFParams(params util.Argon2idParams) SealOption {
	return func(o *sealOptions) {
		o.params = params
	}
}

// NewSealedStore derives the sealing key for inner from passphrase. On first
// use a random salt and a sealed canary are persisted in a metadata bucket;
// later opens verify the passphrase against the canary and fail with
// ErrWrongKey on mismatch.
func NewSealedStore(inner Store, passphrase string, opts ...SealOption) (*SealedStore, error) {
	o := sealOptions{params: util.DefaultArgon2idParams()}
	for _, opt := range opts {
		opt(&o)
	}

	salt, params, fresh, err := loadOrCreateKDFState(inner, o.params)
	if err != nil {
		return nil, err
	}

	key, err := util.DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, fmt.Errorf("deriving storage key: %w", err)
	}

	if fresh {
		env, err := SealValue(key, []byte(canaryText), []byte(canaryAAD))
		if err != nil {
			util.WipeBytes(key)
			return nil, err
		}
		if err := putEnvelope(inner, metaBucket, canaryKey, env); err != nil {
			util.WipeBytes(key)
			return nil, fmt.Errorf("persisting canary: %w", err)
		}
	} else {
		env, err := getEnvelope(inner, metaBucket, canaryKey)
		if err != nil {
			util.WipeBytes(key)
			return nil, fmt.Errorf("loading canary: %w", err)
		}
		if _, err := OpenValue(key, env, []byte(canaryAAD)); err != nil {
			util.WipeBytes(key)
			return nil, err
		}
	}

	// NewEnclave wipes key.
	return &SealedStore{inner: inner, key: memguard.NewEnclave(key)}, nil
}

// loadOrCreateKDFState returns the salt and parameters for the store, and
// whether they were created by this call.
func loadOrCreateKDFState(inner Store, defaults util.Argon2idParams) ([]byte, util.Argon2idParams, bool, error) {
	salt, err := inner.Get(metaBucket, saltKey)
	if err == nil {
		raw, err := inner.Get(metaBucket, paramsKey)
		if err != nil {
			return nil, util.Argon2idParams{}, false, fmt.Errorf("loading kdf params: %w", err)
		}
		var params util.Argon2idParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, util.Argon2idParams{}, false, fmt.Errorf("decoding kdf params: %w", err)
		}
		return salt, params, false, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrBucketNotFound) {
		return nil, util.Argon2idParams{}, false, err
	}

	salt, err = util.RandomBytes(saltSize)
	if err != nil {
		return nil, util.Argon2idParams{}, false, err
	}
	raw, err := json.Marshal(defaults)
	if err != nil {
		return nil, util.Argon2idParams{}, false, err
	}
	err = inner.Batch(metaBucket, func(tx BatchTx) error {
		if err := tx.Put(saltKey, salt); err != nil {
			return err
		}
		return tx.Put(paramsKey, raw)
	})
	if err != nil {
		return nil, util.Argon2idParams{}, false, fmt.Errorf("persisting kdf state: %w", err)
	}
	return salt, defaults, true, nil
}

func valueAAD(bucket, key string) []byte {
	return []byte(valueAADHead + bucket + valueAADSep + key)
}

func putEnvelope(s Store, bucket, key string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Put(bucket, key, data)
}

func getEnvelope(s Store, bucket, key string) (*Envelope, error) {
	data, err := s.Get(bucket, key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope %s/%s: %w", bucket, key, err)
	}
	return &env, nil
}

// withKey opens the enclave for the duration of fn.
func (s *SealedStore) withKey(fn func(key []byte) error) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (s *SealedStore) seal(bucket, key string, value []byte) ([]byte, error) {
	var data []byte
	err := s.withKey(func(k []byte) error {
		env, err := SealValue(k, value, valueAAD(bucket, key))
		if err != nil {
			return err
		}
		data, err = json.Marshal(env)
		return err
	})
	return data, err
}

func (s *SealedStore) Put(bucket, key string, value []byte) error {
	data, err := s.seal(bucket, key, value)
	if err != nil {
		return err
	}
	return s.inner.Put(bucket, key, data)
}

func (s *SealedStore) Get(bucket, key string) ([]byte, error) {
	env, err := getEnvelope(s.inner, bucket, key)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = s.withKey(func(k []byte) error {
		var err error
		value, err = OpenValue(k, env, valueAAD(bucket, key))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func (s *SealedStore) Delete(bucket, key string) error {
	return s.inner.Delete(bucket, key)
}

func (s *SealedStore) List(bucket string) ([]string, error) {
	return s.inner.List(bucket)
}

func (s *SealedStore) Batch(bucket string, fn func(tx BatchTx) error) error {
	return s.inner.Batch(bucket, func(tx BatchTx) error {
		return fn(&sealedBatchTx{store: s, bucket: bucket, tx: tx})
	})
}

type sealedBatchTx struct {
	store  *SealedStore
	bucket string
	tx     BatchTx
}

func (t *sealedBatchTx) Put(key string, value []byte) error {
	data, err := t.store.seal(t.bucket, key, value)
	if err != nil {
		return err
	}
	return t.tx.Put(key, data)
}

func (t *sealedBatchTx) Delete(key string) error {
	return t.tx.Delete(key)
}
