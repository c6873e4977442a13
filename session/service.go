// Package session owns the client-side session lifecycle for one portal
// realm: login, persistence, expiry evaluation, logout and state change
// notification.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/portalauth/storage"
	"github.com/jmcleod/portalauth/token"
)

// Authenticator submits credentials to a realm's login endpoint.
type Authenticator interface {
	Authenticate(ctx context.Context, realm Realm, creds Credentials) (*LoginResponse, error)
}

// ProfileFetcher loads the profile of the identity behind a bearer token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, tokenType, accessToken string) (*Profile, error)
}

// Service is the single writer of one realm's session. All methods are safe
// for concurrent use.
type Service struct {
	realm    Realm
	store    *TokenStore
	auth     Authenticator
	profiles ProfileFetcher
	logger   *slog.Logger
	audit    *auditLogger
	now      func() time.Time
	bus      *broadcaster

	// mu serializes writes so that a published event always follows the
	// storage write it announces.
	mu         sync.Mutex
	generation uint64

	profileGroup singleflight.Group

	pollInterval time.Duration
	polling      atomic.Bool
	lastValid    atomic.Bool
	pollOnce     sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewService creates the Service for realm. store may be nil or
// storage.Unavailable() when no persistent storage exists; the service then
// behaves as if no session were ever stored.
func NewService(realm Realm, store storage.Store, auth Authenticator, opts ...Option) *Service {
	s := &Service{
		realm:        realm,
		auth:         auth,
		logger:       slog.Default(),
		now:          time.Now,
		bus:          newBroadcaster(),
		pollInterval: DefaultPollInterval,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("realm", string(realm))
	s.audit = newAuditLogger(s.logger, s.now)
	s.store = NewTokenStore(store, realm.Bucket(), s.logger)
	s.lastValid.Store(s.IsAuthenticated())
	return s
}

// Realm returns the realm this service manages.
func (s *Service) Realm() Realm {
	return s.realm
}

// Login submits creds and, on success, persists the returned session. A
// Logout that happens while the request is in flight wins: the response is
// discarded and ErrLoginSuperseded is returned.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if s.auth == nil {
		return nil, fmt.Errorf("%w: no authenticator configured", ErrTransport)
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	resp, err := s.auth.Authenticate(ctx, s.realm, creds)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrMalformedToken) {
			s.audit.logFailure(ctx, AuditMalformedToken, err, slog.String("username", creds.Username))
		} else {
			s.audit.logFailure(ctx, AuditLoginFailure, err, slog.String("username", creds.Username))
		}
		return nil, err
	}
	return s.saveSession(ctx, resp, gen)
}

// SaveSession validates resp and persists it as the realm's session,
// replacing any previous one. Nothing is persisted when the token is
// malformed. Subscribers are notified only after the write completes.
func (s *Service) SaveSession(resp *LoginResponse) (*Session, error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	return s.saveSession(context.Background(), resp, gen)
}

func (s *Service) saveSession(ctx context.Context, resp *LoginResponse, gen uint64) (*Session, error) {
	sess, err := s.buildSession(resp)
	if err != nil {
		s.audit.logFailure(ctx, AuditMalformedToken, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.audit.logFailure(ctx, AuditLoginSuperseded, ErrLoginSuperseded, slog.String("username", sess.Username))
		return nil, ErrLoginSuperseded
	}
	if err := s.store.Replace(sessionValues(sess)); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	s.lastValid.Store(!sess.Expired(s.now()))
	s.publishLocked(true, ReasonLogin)
	s.audit.logEvent(ctx, AuditLoginSuccess, sess.Username,
		slog.String("token_expiry", sess.TokenExpiry.UTC().Format(time.RFC3339)))
	return sess, nil
}

func (s *Service) buildSession(resp *LoginResponse) (*Session, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty login response", ErrMalformedToken)
	}
	if err := token.CheckShape(resp.AccessToken); err != nil {
		return nil, err
	}
	claims, err := token.DecodeClaims(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	exp, err := token.Expiry(claims)
	if err != nil {
		return nil, err
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	role := resp.Role
	if role == "" {
		role = strings.Join(token.ExtractRoles(claims), ",")
	}
	return &Session{
		Realm:       s.realm,
		Token:       resp.AccessToken,
		TokenType:   tokenType,
		UserID:      resp.UserID,
		Username:    resp.Username,
		Role:        role,
		LoginTime:   s.now(),
		TokenExpiry: time.Unix(exp, 0),
	}, nil
}

func sessionValues(sess *Session) map[string]string {
	v := map[string]string{
		KeyToken:       sess.Token,
		KeyTokenType:   sess.TokenType,
		KeyUsername:    sess.Username,
		KeyUserRole:    sess.Role,
		KeyLoginTime:   strconv.FormatInt(sess.LoginTime.UnixMilli(), 10),
		KeyTokenExpiry: strconv.FormatInt(sess.TokenExpiry.Unix(), 10),
	}
	if sess.UserID != "" {
		v[KeyUserID] = sess.UserID
	}
	return v
}

// load reads the stored session. Records missing the token, its expiry or
// the login time are treated as absent.
func (s *Service) load() (*Session, bool) {
	tok, ok := s.store.Read(KeyToken)
	if !ok || tok == "" {
		return nil, false
	}
	rawExp, ok := s.store.Read(KeyTokenExpiry)
	if !ok {
		return nil, false
	}
	exp, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil {
		return nil, false
	}
	rawLogin, ok := s.store.Read(KeyLoginTime)
	if !ok {
		return nil, false
	}
	loginMillis, err := strconv.ParseInt(rawLogin, 10, 64)
	if err != nil {
		return nil, false
	}

	sess := &Session{
		Realm:       s.realm,
		Token:       tok,
		TokenType:   DefaultTokenType,
		LoginTime:   time.UnixMilli(loginMillis),
		TokenExpiry: time.Unix(exp, 0),
	}
	if v, ok := s.store.Read(KeyTokenType); ok && v != "" {
		sess.TokenType = v
	}
	sess.UserID, _ = s.store.Read(KeyUserID)
	sess.Username, _ = s.store.Read(KeyUsername)
	sess.Role, _ = s.store.Read(KeyUserRole)
	return sess, true
}

// IsAuthenticated reports whether a complete, unexpired session is stored.
// It is re-evaluated against the clock on every call.
func (s *Service) IsAuthenticated() bool {
	sess, ok := s.load()
	if !ok {
		return false
	}
	return !token.IsExpired(sess.Token, s.now().Unix())
}

// Current returns the stored session. An expired session is cleared,
// subscribers are told, and ErrExpiredSession is returned.
func (s *Service) Current() (*Session, error) {
	s.mu.Lock()
	sess, ok := s.load()
	if !ok {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	if !token.IsExpired(sess.Token, s.now().Unix()) {
		s.mu.Unlock()
		return sess, nil
	}
	username := s.endSessionLocked(ReasonExpired)
	s.mu.Unlock()

	s.audit.logEvent(context.Background(), AuditSessionExpired, username)
	return nil, ErrExpiredSession
}

// Token returns the stored token and its type for attaching to requests.
// Expiry is not evaluated.
func (s *Service) Token() (tokenType, accessToken string, ok bool) {
	accessToken, ok = s.store.Read(KeyToken)
	if !ok || accessToken == "" {
		return "", "", false
	}
	tokenType, _ = s.store.Read(KeyTokenType)
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return tokenType, accessToken, true
}

// Roles returns the roles carried by the stored token, falling back to the
// stored userRole. It returns an empty slice when there is no session.
func (s *Service) Roles() []string {
	sess, ok := s.load()
	if !ok {
		return []string{}
	}
	if claims, err := token.DecodeClaims(sess.Token); err == nil {
		if roles := token.ExtractRoles(claims); len(roles) > 0 {
			return roles
		}
	}
	if sess.Role != "" {
		return strings.Split(sess.Role, ",")
	}
	return []string{}
}

// Logout clears the realm's session and notifies subscribers. It always
// notifies, even when no session was stored, and supersedes any login that
// is still in flight.
func (s *Service) Logout() {
	s.endSession(context.Background(), ReasonLogout)
}

// expireToken ends the session only while accessToken is still the stored
// token, so a verdict about a replaced session never clears its successor.
func (s *Service) expireToken(ctx context.Context, accessToken string) bool {
	s.mu.Lock()
	if current, _ := s.store.Read(KeyToken); current != accessToken {
		s.mu.Unlock()
		return false
	}
	username := s.endSessionLocked(ReasonExpired)
	s.mu.Unlock()

	s.audit.logEvent(ctx, AuditSessionExpired, username)
	return true
}

func (s *Service) endSession(ctx context.Context, reason Reason) {
	s.mu.Lock()
	username := s.endSessionLocked(reason)
	s.mu.Unlock()

	event := AuditLogout
	if reason == ReasonExpired {
		event = AuditSessionExpired
	}
	s.audit.logEvent(ctx, event, username)
}

// endSessionLocked clears the session and publishes. It returns the
// username that was stored. s.mu must be held.
func (s *Service) endSessionLocked(reason Reason) string {
	username, _ := s.store.Read(KeyUsername)
	s.generation++
	if err := s.store.Clear(); err != nil {
		s.logger.Error("clearing session", "error", err)
	}
	s.lastValid.Store(false)
	s.publishLocked(false, reason)
	return username
}

func (s *Service) publishLocked(authenticated bool, reason Reason) {
	s.bus.publish(Event{
		Realm:         s.realm,
		Authenticated: authenticated,
		Reason:        reason,
		At:            s.now(),
	})
}

// Subscribe attaches a new subscriber. Events published before the call are
// not replayed; call IsAuthenticated once to learn the current state.
func (s *Service) Subscribe() *Subscription {
	return s.bus.subscribe()
}

// Profile returns the cached profile, if one has been stored.
func (s *Service) Profile() (*Profile, bool) {
	p := &Profile{}
	var found bool
	for key, dst := range map[string]*string{
		KeyEmployeeName:       &p.Name,
		KeyEmployeeEmail:      &p.Email,
		KeyEmployeeDepartment: &p.Department,
		KeyOrganizationName:   &p.OrganizationName,
	} {
		if v, ok := s.store.Read(key); ok {
			*dst = v
			found = true
		}
	}
	if !found {
		return nil, false
	}
	p.Role, _ = s.store.Read(KeyUserRole)
	return p, true
}

// CacheProfile stores p alongside the current session.
func (s *Service) CacheProfile(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheProfileLocked(p)
}

func (s *Service) cacheProfileLocked(p *Profile) error {
	if _, ok := s.load(); !ok {
		return ErrNoSession
	}
	return s.store.WriteAll(map[string]string{
		KeyEmployeeName:       p.Name,
		KeyEmployeeEmail:      p.Email,
		KeyEmployeeDepartment: p.Department,
		KeyOrganizationName:   p.OrganizationName,
	})
}

// RefreshProfile fetches the profile for the current token and caches it.
// Concurrent calls share one request. A rejected token forces a logout and
// returns ErrExpiredSession, unless a new session replaced it while the
// request was in flight; then the new session is left untouched.
func (s *Service) RefreshProfile(ctx context.Context) (*Profile, error) {
	if s.profiles == nil {
		return nil, ErrNoProfileFetcher
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	tokenType, tok, ok := s.Token()
	if !ok {
		return nil, ErrNoSession
	}

	v, err, _ := s.profileGroup.Do(tok, func() (any, error) {
		return s.profiles.FetchProfile(ctx, tokenType, tok)
	})
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) && authErr.Status == http.StatusUnauthorized && s.expireToken(ctx, tok) {
			return nil, fmt.Errorf("%w: %w", ErrExpiredSession, err)
		}
		return nil, classify(err)
	}
	p := v.(*Profile)

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, _ := s.store.Read(KeyToken); gen != s.generation || current != tok {
		return nil, fmt.Errorf("%w: session replaced while fetching profile", ErrNoSession)
	}
	if err := s.cacheProfileLocked(p); err != nil {
		return nil, err
	}
	s.audit.logEvent(ctx, AuditProfileRefresh, p.Email)
	return p, nil
}

// Close stops polling and detaches every subscriber.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.bus.close()
}
