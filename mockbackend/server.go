// Package mockbackend is a development stand-in for the portal backend's
// login and profile endpoints. It issues HS256 tokens carrying exp and
// role claims in the shapes the real backend uses.
package mockbackend

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/portalauth/internal/util"
	"github.com/jmcleod/portalauth/internal/uuid"
	"github.com/jmcleod/portalauth/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server holds the mock backend's accounts and signing key.
type Server struct {
	mu       sync.RWMutex
	accounts map[session.Realm]map[string]*account

	secret     []byte
	tokenTTL   time.Duration
	now        func() time.Time
	logger     *slog.Logger
	bcryptCost int
}

// Option configures the Server.
type Option func(*Server)

// WithSecret sets the HMAC signing key. Default: a random key.
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = util.CopyBytes(secret)
	}
}

// WithTokenTTL sets issued token lifetime. Default: one hour.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// WithClock overrides the time source used for exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

// New creates a Server with no accounts.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		accounts:   make(map[session.Realm]map[string]*account),
		tokenTTL:   time.Hour,
		now:        time.Now,
		logger:     slog.Default(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		secret, err := util.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		s.secret = util.CopyBytes(secret)
	}
	s.logger = s.logger.With("component", "mockbackend")
	return s, nil
}

// AddUser registers u, replacing any account with the same realm and
// username.
func (s *Server) AddUser(u User) error {
	acct, err := newAccount(u, s.bcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts[acct.Realm] == nil {
		s.accounts[acct.Realm] = make(map[string]*account)
	}
	s.accounts[acct.Realm][acct.Username] = acct
	return nil
}

// Router returns a chi.Router with every endpoint mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Post("/login/{realm}", s.Login)
	r.With(s.BearerAuth).Get("/employee/get-employee-detail", s.Profile)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// Login handles POST /login/{realm}.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	realm, err := session.ParseRealm(chi.URLParam(r, "realm"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var creds session.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.RLock()
	acct := s.accounts[realm][util.NormalizeUsername(creds.Username)]
	s.mu.RUnlock()

	if acct == nil || !acct.checkPassword(creds.Password) {
		s.logger.Info("login rejected", "realm", realm, "username", creds.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if acct.Suspended {
		s.logger.Info("login rejected, account suspended", "realm", realm, "username", acct.Username)
		writeError(w, http.StatusForbidden, "Account suspended")
		return
	}

	tok, err := s.IssueToken(acct.User, acct.id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issuing token failed")
		return
	}

	resp := session.LoginResponse{
		AccessToken: tok,
		TokenType:   session.DefaultTokenType,
		Username:    acct.Username,
		Role:        acct.Role,
	}
	// Admin and organization responses omit userId, like the real backend.
	if realm == session.RealmEmployee {
		resp.UserID = acct.id
	}
	writeJSON(w, http.StatusOK, resp)
}

// IssueToken signs a token for u. Admin tokens carry their role as an
// authorities list; other realms use a plain role claim.
func (s *Server) IssueToken(u User, subject string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      subject,
		"username": u.Username,
		"realm":    string(u.Realm),
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
		"jti":      uuid.New(),
	}
	if u.Realm == session.RealmAdmin {
		claims["authorities"] = []map[string]string{{"authority": u.Role}}
	} else {
		claims["role"] = u.Role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

type contextKey int

const accountKey contextKey = iota

func withAccount(ctx context.Context, acct *account) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

func accountFrom(ctx context.Context) *account {
	acct, _ := ctx.Value(accountKey).(*account)
	return acct
}

// BearerAuth rejects requests without a valid bearer token and stores the
// token's account on the request context.
func (s *Server) BearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		acct, err := s.verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), acct)))
	})
}

func (s *Server) verify(raw string) (*account, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}

	sub, _ := claims.GetSubject()
	if !uuid.Valid(sub) {
		return nil, errors.New("invalid token")
	}
	realm, _ := claims["realm"].(string)
	username, _ := claims["username"].(string)
	s.mu.RLock()
	acct := s.accounts[session.Realm(realm)][username]
	s.mu.RUnlock()
	if acct == nil {
		return nil, errors.New("unknown account")
	}
	if sub != acct.id {
		return nil, errors.New("invalid token")
	}
	return acct, nil
}

// Profile handles GET /employee/get-employee-detail.
func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"employeeName":     acct.Name,
		"employeeRole":     acct.Role,
		"email":            acct.Email,
		"department":       acct.Department,
		"organizationName": acct.Organization,
	})
}
