package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/portalauth/storage"
	"github.com/jmcleod/portalauth/storage/memory"
)

func TestTokenStore(t *testing.T) {
	ts := NewTokenStore(memory.New(), RealmAdmin.Bucket(), nil)

	_, ok := ts.Read(KeyToken)
	assert.False(t, ok)

	ts.Write(KeyToken, "a.b.c")
	v, ok := ts.Read(KeyToken)
	require.True(t, ok)
	assert.Equal(t, "a.b.c", v)

	ts.Remove(KeyToken)
	ts.Remove(KeyToken)
	_, ok = ts.Read(KeyToken)
	assert.False(t, ok)

	require.NoError(t, ts.WriteAll(map[string]string{KeyToken: "t", KeyUsername: "root", KeyEmployeeEmail: "r@x"}))
	require.NoError(t, ts.Clear())
	for _, k := range []string{KeyToken, KeyUsername, KeyEmployeeEmail} {
		_, ok := ts.Read(k)
		assert.False(t, ok, "key %s survived Clear", k)
	}
}

func TestTokenStoreUnavailable(t *testing.T) {
	for name, store := range map[string]storage.Store{
		"nil":         nil,
		"unavailable": storage.Unavailable(),
	} {
		t.Run(name, func(t *testing.T) {
			ts := NewTokenStore(store, RealmEmployee.Bucket(), nil)
			assert.NotPanics(t, func() { ts.Write(KeyToken, "x") })
			_, ok := ts.Read(KeyToken)
			assert.False(t, ok)
			assert.NotPanics(t, func() { ts.Remove(KeyToken) })
			assert.NoError(t, ts.Clear())
			assert.ErrorIs(t, ts.WriteAll(map[string]string{KeyToken: "x"}), storage.ErrUnavailable)
		})
	}
}

// failingStore fails every batch after applying its writes.
type failingStore struct {
	storage.Store
}

func (f failingStore) Batch(bucket string, fn func(tx storage.BatchTx) error) error {
	return f.Store.Batch(bucket, func(tx storage.BatchTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errors.New("disk full")
	})
}

func TestTokenStoreReplaceIsAtomic(t *testing.T) {
	inner := memory.New()
	ts := NewTokenStore(inner, RealmEmployee.Bucket(), nil)
	require.NoError(t, ts.Replace(map[string]string{KeyToken: "old", KeyUserID: "1"}))

	failing := NewTokenStore(failingStore{inner}, RealmEmployee.Bucket(), nil)
	err := failing.Replace(map[string]string{KeyToken: "new"})
	require.Error(t, err)

	v, _ := ts.Read(KeyToken)
	assert.Equal(t, "old", v)
	v, _ = ts.Read(KeyUserID)
	assert.Equal(t, "1", v, "a failed replace must not remove keys")

	require.Error(t, failing.Clear())
	_, ok := ts.Read(KeyToken)
	assert.True(t, ok, "a failed clear must not remove keys")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&AuthenticationError{Status: 401}, "Invalid username or password. Please try again."},
		{&AuthenticationError{Status: 403}, "Your account has been suspended. Please contact administrator."},
		{fmt.Errorf("%w: dial tcp", ErrTransport), "Unable to connect to server. Please check your internet connection."},
		{&StatusError{Status: 500, Message: "Server exploded"}, "Server exploded"},
		{fmt.Errorf("%w: deadline", ErrTimeout), "The server is taking too long to respond. Please try again."},
		{ErrMalformedToken, "The server returned an unexpected response. Please contact support."},
		{ErrExpiredSession, "Your session has expired. Please log in again."},
		{errors.New("boom"), "Login failed. Please try again later."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}

func TestParseRealm(t *testing.T) {
	r, err := ParseRealm(" Employee ")
	require.NoError(t, err)
	assert.Equal(t, RealmEmployee, r)
	assert.Equal(t, "/login/employee", r.LoginPath())

	_, err = ParseRealm("vendor")
	assert.Error(t, err)
}
