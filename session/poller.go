package session

import (
	"context"
	"errors"
	"time"
)

// StartPolling re-checks the session every poll interval until ctx is done
// or Close is called. A session that stops being valid between two checks
// is cleared and subscribers receive an expired event. While the session is
// valid the cached profile is refreshed when a ProfileFetcher is configured.
// Only the first call starts a poller.
func (s *Service) StartPolling(ctx context.Context) {
	s.pollOnce.Do(func() {
		s.wg.Add(1)
		go s.pollLoop(ctx)
	})
}

func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.poll(ctx)
			}()
		}
	}
}

// poll runs one check. It returns false without doing anything when the
// previous check is still running.
func (s *Service) poll(ctx context.Context) bool {
	if !s.polling.CompareAndSwap(false, true) {
		s.logger.Debug("session poll skipped, previous poll still running")
		return false
	}
	defer s.polling.Store(false)

	// The read and the clear share s.mu so a login landing mid-check is
	// either seen as valid or not yet started.
	s.mu.Lock()
	valid := s.IsAuthenticated()
	wasValid := s.lastValid.Swap(valid)
	var username string
	expired := wasValid && !valid
	if expired {
		username = s.endSessionLocked(ReasonExpired)
	}
	s.mu.Unlock()

	if expired {
		s.logger.Info("session expired")
		s.audit.logEvent(ctx, AuditSessionExpired, username)
		return true
	}
	if !valid || s.profiles == nil {
		return true
	}
	if _, err := s.RefreshProfile(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		s.logger.Warn("refreshing profile", "error", err)
	}
	return true
}
