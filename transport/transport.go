// Package transport attaches the current session token to outgoing HTTP
// requests.
package transport

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the token to attach. *session.Service satisfies it.
type TokenSource interface {
	Token() (tokenType, accessToken string, ok bool)
}

type tokenKey struct{}

type pinnedToken struct {
	tokenType   string
	accessToken string
}

// ContextWithToken pins the token a request made with ctx must carry. A
// pinned token takes precedence over the Transport's TokenSource and over
// the skip prefixes.
func ContextWithToken(ctx context.Context, tokenType, accessToken string) context.Context {
	return context.WithValue(ctx, tokenKey{}, pinnedToken{tokenType: tokenType, accessToken: accessToken})
}

func tokenFromContext(ctx context.Context) (tokenType, accessToken string, ok bool) {
	p, ok := ctx.Value(tokenKey{}).(pinnedToken)
	if !ok || p.accessToken == "" {
		return "", "", false
	}
	return p.tokenType, p.accessToken, true
}

// DefaultSkipPrefixes are path prefixes that never receive a token.
var DefaultSkipPrefixes = []string{"/login/"}

// Transport is an http.RoundTripper that sets the Authorization header from
// a TokenSource, or from a token pinned with ContextWithToken. It never
// blocks, retries or refreshes; without a token the request is passed
// through untouched. src may be nil when every request pins its token.
type Transport struct {
	source TokenSource
	base   http.RoundTripper
	skip   []string
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying RoundTripper. Default: http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithSkipPrefixes replaces the list of path prefixes that are sent without
// a token.
func WithSkipPrefixes(prefixes ...string) Option {
	return func(t *Transport) {
		t.skip = prefixes
	}
}

// New returns a Transport reading tokens from src.
func New(src TokenSource, opts ...Option) *Transport {
	t := &Transport{
		source: src,
		base:   http.DefaultTransport,
		skip:   DefaultSkipPrefixes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns an http.Client using a Transport over src.
func NewClient(src TokenSource, timeout time.Duration, opts ...Option) *http.Client {
	return &http.Client{
		Transport: New(src, opts...),
		Timeout:   timeout,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	tokenType, tok, ok := tokenFromContext(req.Context())
	if !ok {
		if !t.applies(req) {
			return t.base.RoundTrip(req)
		}
		tokenType, tok, ok = t.source.Token()
	}
	if !ok {
		return t.base.RoundTrip(req)
	}
	if tokenType == "" {
		tokenType = "Bearer"
	}
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", tokenType+" "+tok)
	return t.base.RoundTrip(r)
}

func (t *Transport) applies(req *http.Request) bool {
	if t.source == nil {
		return false
	}
	for _, p := range t.skip {
		if strings.HasPrefix(req.URL.Path, p) {
			return false
		}
	}
	return true
}

// Headers returns the JSON content type plus, when src holds a token, the
// Authorization header. It serves callers that build requests by hand.
func Headers(src TokenSource) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if src == nil {
		return h
	}
	if tokenType, tok, ok := src.Token(); ok {
		h.Set("Authorization", tokenType+" "+tok)
	}
	return h
}
