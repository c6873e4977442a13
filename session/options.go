package session

import (
	"log/slog"
	"time"
)

// DefaultPollInterval is how often a polling Service re-checks its session.
const DefaultPollInterval = 30 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPollInterval sets the interval used by StartPolling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithProfileFetcher enables profile refresh through f.
func WithProfileFetcher(f ProfileFetcher) Option {
	return func(s *Service) {
		s.profiles = f
	}
}
