package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollDetectsExpiry(t *testing.T) {
	s, clock, _ := newTestService(t, nil)
	_, err := s.SaveSession(responseFor(t, "alice", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	sub := s.Subscribe()

	require.True(t, s.poll(t.Context()))
	assertNoEvent(t, sub)

	clock.Set(clock.Now().Add(2 * time.Minute))
	require.True(t, s.poll(t.Context()))
	ev := recv(t, sub)
	assert.False(t, ev.Authenticated)
	assert.Equal(t, ReasonExpired, ev.Reason)
	_, _, ok := s.Token()
	assert.False(t, ok, "expired session must be cleared")

	// Already invalid: no further events.
	require.True(t, s.poll(t.Context()))
	assertNoEvent(t, sub)
}

func TestPollSkipsWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := profileFunc(func(context.Context, string, string) (*Profile, error) {
		close(entered)
		<-release
		return &Profile{Name: "Alice"}, nil
	})
	s, clock, _ := newTestService(t, nil, WithProfileFetcher(fetcher))
	_, err := s.SaveSession(responseFor(t, "alice", clock.Now().Add(time.Hour)))
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.poll(context.Background()) }()
	<-entered

	assert.False(t, s.poll(t.Context()), "overlapping poll must be skipped")
	close(release)
	assert.True(t, <-done)
}

func TestStartPollingRefreshesProfile(t *testing.T) {
	var calls atomic.Int32
	fetcher := profileFunc(func(context.Context, string, string) (*Profile, error) {
		calls.Add(1)
		return &Profile{Name: "Alice", Email: "alice@example.com"}, nil
	})
	s, clock, _ := newTestService(t, nil, WithProfileFetcher(fetcher), WithPollInterval(5*time.Millisecond))
	_, err := s.SaveSession(responseFor(t, "alice", clock.Now().Add(time.Hour)))
	require.NoError(t, err)

	s.StartPolling(t.Context())
	s.StartPolling(t.Context())

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	p, ok := s.Profile()
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Name)

	s.Close()
}

func TestStartPollingStopsWithContext(t *testing.T) {
	s, _, _ := newTestService(t, nil, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(t.Context())
	s.StartPolling(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after poller context was cancelled")
	}
}
