package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmcleod/portalauth/token"
)

var (
	// ErrAuthentication means the backend rejected the credentials or token.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransport means the backend could not be reached or answered with
	// an unexpected status.
	ErrTransport = errors.New("transport error")
	// ErrTimeout means the backend did not answer in time.
	ErrTimeout = errors.New("request timed out")
	// ErrMalformedToken means the backend returned a token or body that
	// does not match the expected contract.
	ErrMalformedToken = token.ErrMalformed
	// ErrExpiredSession means the stored session expired and was cleared.
	ErrExpiredSession = errors.New("session expired")
	// ErrNoSession means there is no stored session for the realm.
	ErrNoSession = errors.New("no session")
	// ErrLoginSuperseded means a logout happened while the login request
	// was in flight, so its response was discarded.
	ErrLoginSuperseded = errors.New("login superseded by logout")
	// ErrNoProfileFetcher means profile refresh is not configured.
	ErrNoProfileFetcher = errors.New("no profile fetcher configured")
)

// AuthenticationError carries the backend's rejection. It matches
// ErrAuthentication with errors.Is.
type AuthenticationError struct {
	Status  int
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("authentication failed (HTTP %d): %s", e.Status, e.Message)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// StatusError is an unexpected non-2xx response. It matches ErrTransport.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// classify maps a raw authenticator failure onto the error taxonomy. Errors
// already carrying a kind pass through unchanged.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrMalformedToken):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// UserMessage renders the guidance shown to a person for err.
func UserMessage(err error) string {
	var authErr *AuthenticationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		if authErr.Status == http.StatusForbidden {
			return "Your account has been suspended. Please contact administrator."
		}
		return "Invalid username or password. Please try again."
	case errors.Is(err, ErrAuthentication):
		return "Invalid username or password. Please try again."
	case errors.Is(err, ErrTimeout):
		return "The server is taking too long to respond. Please try again."
	case errors.Is(err, ErrMalformedToken):
		return "The server returned an unexpected response. Please contact support."
	case errors.Is(err, ErrExpiredSession):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrLoginSuperseded):
		return "You are not logged in."
	case errors.Is(err, ErrTransport):
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Message != "" {
			return statusErr.Message
		}
		return "Unable to connect to server. Please check your internet connection."
	default:
		return "Login failed. Please try again later."
	}
}
