package bbolt

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmcleod/portalauth/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	return db, path
}

func TestBBoltStore(t *testing.T) {
	db, _ := newTestDB(t)
	s := New(db)
	defer s.Close()

	bucket := "employee"

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(bucket, "token", []byte("a.b.c")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(bucket, "token")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "a.b.c" {
			t.Errorf("expected a.b.c, got %q", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(bucket, "username", []byte("alice"))
		keys, err := s.List(bucket)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %v", keys)
		}

		keys, err = s.List("missing-bucket")
		if err != nil || len(keys) != 0 {
			t.Errorf("expected empty list for missing bucket, got %v, %v", keys, err)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		if _, err := s.Get("missing-bucket", "token"); !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
		if _, err := s.Get(bucket, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(bucket, "username"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(bucket, "username"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.Delete("missing-bucket", "x"); !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
	})

	t.Run("Batch rollback", func(t *testing.T) {
		err := s.Batch(bucket, func(tx storage.BatchTx) error {
			if err := tx.Put("token", []byte("replaced")); err != nil {
				return err
			}
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Fatal("expected error from Batch")
		}
		got, _ := s.Get(bucket, "token")
		if string(got) != "a.b.c" {
			t.Errorf("expected original value after rollback, got %q", got)
		}
	})

	t.Run("Batch delete missing", func(t *testing.T) {
		err := s.Batch(bucket, func(tx storage.BatchTx) error {
			return tx.Delete("never-written")
		})
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}

func TestBBoltStorePersistsAcrossReopen(t *testing.T) {
	db, path := newTestDB(t)
	s := New(db)
	if err := s.Put("admin", "token", []byte("persisted")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get("admin", "token")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("expected persisted, got %q", got)
	}
}

func TestOpenInvalidPath(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database file.
	if _, err := Open(dir, nil); err == nil {
		t.Error("expected error opening a directory as a database")
	}
}
