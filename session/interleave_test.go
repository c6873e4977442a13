package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/portalauth/storage"
	"github.com/jmcleod/portalauth/storage/memory"
)

// gatedStore pauses the first token read after it is armed, once the value
// has been read, until release is closed.
type gatedStore struct {
	storage.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Get(bucket, key string) ([]byte, error) {
	v, err := g.Store.Get(bucket, key)
	if key == KeyToken && g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return v, err
}

func newGatedService(t *testing.T, opts ...Option) (*Service, *fakeClock, *gatedStore) {
	t.Helper()
	clock := newFakeClock()
	store := newGatedStore()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := NewService(RealmEmployee, store, nil, opts...)
	t.Cleanup(s.Close)
	return s, clock, store
}

// saveWhilePaused starts SaveSession(resp) while the gated read is paused,
// checks that it waits for the paused operation, then releases the gate.
func saveWhilePaused(t *testing.T, s *Service, store *gatedStore, resp *LoginResponse) <-chan error {
	t.Helper()
	saved := make(chan error, 1)
	go func() {
		_, err := s.SaveSession(resp)
		saved <- err
	}()
	select {
	case err := <-saved:
		t.Fatalf("save completed while a session check was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(store.release)
	return saved
}

func TestPollDuringLoginKeepsNewSession(t *testing.T) {
	s, clock, store := newGatedService(t)
	sub := s.Subscribe()
	resp := responseFor(t, "alice", clock.Now().Add(time.Hour))

	store.armed.Store(true)
	polled := make(chan bool, 1)
	go func() { polled <- s.poll(context.Background()) }()
	<-store.entered

	saved := saveWhilePaused(t, s, store, resp)
	require.True(t, <-polled)
	require.NoError(t, <-saved)

	assert.True(t, s.IsAuthenticated())
	ev := recv(t, sub)
	assert.True(t, ev.Authenticated)
	assert.Equal(t, ReasonLogin, ev.Reason)
	assertNoEvent(t, sub)

	require.True(t, s.poll(t.Context()))
	assert.True(t, s.IsAuthenticated())
	assertNoEvent(t, sub)
}

func TestCurrentDuringLoginKeepsNewSession(t *testing.T) {
	s, clock, store := newGatedService(t)
	_, err := s.SaveSession(responseFor(t, "alice", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	clock.Set(clock.Now().Add(2 * time.Minute))
	sub := s.Subscribe()
	resp := responseFor(t, "bob", clock.Now().Add(time.Hour))

	store.armed.Store(true)
	current := make(chan error, 1)
	go func() {
		_, err := s.Current()
		current <- err
	}()
	<-store.entered

	saved := saveWhilePaused(t, s, store, resp)
	require.ErrorIs(t, <-current, ErrExpiredSession)
	require.NoError(t, <-saved)

	assert.Equal(t, ReasonExpired, recv(t, sub).Reason)
	assert.Equal(t, ReasonLogin, recv(t, sub).Reason)
	sess, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Username)
}

// pausedFetcher blocks in FetchProfile until release is closed, then
// returns the configured result.
type pausedFetcher struct {
	entered chan struct{}
	release chan struct{}
	profile *Profile
	err     error
	token   atomic.Value
}

func newPausedFetcher(p *Profile, err error) *pausedFetcher {
	return &pausedFetcher{entered: make(chan struct{}), release: make(chan struct{}), profile: p, err: err}
}

func (f *pausedFetcher) FetchProfile(_ context.Context, _, accessToken string) (*Profile, error) {
	f.token.Store(accessToken)
	close(f.entered)
	<-f.release
	return f.profile, f.err
}

// refreshAcrossLogin runs RefreshProfile for alice's session and lets bob log
// in while the fetch is in flight.
func refreshAcrossLogin(t *testing.T, f *pausedFetcher) (*Service, *Subscription, error) {
	t.Helper()
	s, clock, _ := newTestService(t, nil, WithProfileFetcher(f))
	alice := responseFor(t, "alice", clock.Now().Add(time.Hour))
	bob := responseFor(t, "bob", clock.Now().Add(time.Hour))
	_, err := s.SaveSession(alice)
	require.NoError(t, err)
	sub := s.Subscribe()

	refreshed := make(chan error, 1)
	go func() {
		_, err := s.RefreshProfile(context.Background())
		refreshed <- err
	}()
	<-f.entered
	assert.Equal(t, alice.AccessToken, f.token.Load())

	_, err = s.SaveSession(bob)
	require.NoError(t, err)
	assert.Equal(t, ReasonLogin, recv(t, sub).Reason)
	close(f.release)
	return s, sub, <-refreshed
}

func TestRejectedStaleTokenKeepsNewSession(t *testing.T) {
	s, sub, err := refreshAcrossLogin(t, newPausedFetcher(nil, &AuthenticationError{Status: 401}))

	require.ErrorIs(t, err, ErrAuthentication)
	assert.NotErrorIs(t, err, ErrExpiredSession)
	assert.True(t, s.IsAuthenticated())
	sess, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Username)
	assertNoEvent(t, sub)
}

func TestStaleProfileIsNotCachedOnNewSession(t *testing.T) {
	s, sub, err := refreshAcrossLogin(t, newPausedFetcher(&Profile{Name: "Alice", Email: "alice@example.com"}, nil))

	require.ErrorIs(t, err, ErrNoSession)
	_, ok := s.Profile()
	assert.False(t, ok, "alice's profile must not be stored on bob's session")
	assert.True(t, s.IsAuthenticated())
	assertNoEvent(t, sub)
}
