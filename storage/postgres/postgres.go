// Package postgres implements storage.Store backed by PostgreSQL, for hosts
// that keep client sessions in a shared database.
//
// Every value lives in one session_values row keyed by (bucket, key). A
// bucket exists while it has at least one row.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/portalauth/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New returns a Store backed by the given pgx connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open creates a connection pool from a DSN string, ensures the schema
// exists, and returns a new Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return New(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const upsertSQL = `INSERT INTO session_values (bucket, key, value)
	VALUES ($1, $2, $3)
	ON CONFLICT (bucket, key)
	DO UPDATE SET value = $3, updated_at = now()`

func (s *Store) Put(bucket, key string, value []byte) error {
	_, err := s.pool.Exec(context.Background(), upsertSQL, bucket, key, value)
	return err
}

func (s *Store) Get(bucket, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT value FROM session_values WHERE bucket = $1 AND key = $2`,
		bucket, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundError(context.Background(), s.pool, bucket, key)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(bucket, key string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM session_values WHERE bucket = $1 AND key = $2`,
		bucket, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundError(context.Background(), s.pool, bucket, key)
	}
	return nil
}

// List returns the keys of a bucket in key order. A missing bucket yields
// an empty list.
func (s *Store) List(bucket string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT key FROM session_values WHERE bucket = $1 ORDER BY key`, bucket)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Batch runs fn inside one database transaction. The transaction is rolled
// back when fn fails.
func (s *Store) Batch(bucket string, fn func(tx storage.BatchTx) error) error {
	ctx := context.Background()
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgBatchTx{ctx: ctx, tx: pgTx, bucket: bucket}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

type pgBatchTx struct {
	ctx    context.Context
	tx     pgx.Tx
	bucket string
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Put(key string, value []byte) error {
	_, err := btx.tx.Exec(btx.ctx, upsertSQL, btx.bucket, key, value)
	return err
}

func (btx *pgBatchTx) Delete(key string) error {
	_, err := btx.tx.Exec(btx.ctx,
		`DELETE FROM session_values WHERE bucket = $1 AND key = $2`,
		btx.bucket, key)
	return err
}

// notFoundError distinguishes a missing bucket from a missing key, matching
// the BBolt and in-memory backends.
func notFoundError(ctx context.Context, pool *pgxpool.Pool, bucket, key string) error {
	var exists bool
	_ = pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_values WHERE bucket = $1)`,
		bucket).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", bucket, storage.ErrBucketNotFound)
	}
	return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
}
