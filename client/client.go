// Package client talks to the portal backend's login and profile endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/portalauth/internal/util"
	"github.com/jmcleod/portalauth/session"
	"github.com/jmcleod/portalauth/transport"
)

// ProfilePath is the endpoint returning the logged-in employee's details.
const ProfilePath = "/employee/get-employee-detail"

const maxErrorBody = 64 << 10

// Client is the HTTP client for the portal backend. It implements
// session.Authenticator and session.ProfileFetcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ session.Authenticator  = (*Client)(nil)
	_ session.ProfileFetcher = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A client whose
// Transport is not a *transport.Transport is copied and its Transport
// wrapped in one, since the profile request relies on it for the
// Authorization header.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if _, ok := hc.Transport.(*transport.Transport); ok {
			c.httpClient = hc
			return
		}
		wrapped := *hc
		wrapped.Transport = transport.New(nil, transport.WithBase(hc.Transport))
		c.httpClient = &wrapped
	}
}

// WithTimeout sets the request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: transport.NewClient(nil, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ErrorResponse is the error body returned by the backend.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// profileResponse is the body of ProfilePath.
type profileResponse struct {
	EmployeeName     string `json:"employeeName"`
	EmployeeRole     string `json:"employeeRole"`
	Email            string `json:"email"`
	Department       string `json:"department"`
	OrganizationName string `json:"organizationName"`
}

// Authenticate posts creds to realm's login endpoint. The username is
// trimmed and NFKC-normalized before it is sent.
func (c *Client) Authenticate(ctx context.Context, realm session.Realm, creds session.Credentials) (*session.LoginResponse, error) {
	body, err := json.Marshal(session.Credentials{
		Username: util.NormalizeUsername(creds.Username),
		Password: creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+realm.LoginPath(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out session.LoginResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response has no accessToken", session.ErrMalformedToken)
	}
	return &out, nil
}

// FetchProfile loads the profile for the given bearer token. The token is
// pinned on the request context and attached by the transport.
func (c *Client) FetchProfile(ctx context.Context, tokenType, accessToken string) (*session.Profile, error) {
	ctx = transport.ContextWithToken(ctx, tokenType, accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ProfilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var out profileResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &session.Profile{
		Name:             out.EmployeeName,
		Role:             out.EmployeeRole,
		Email:            out.Email,
		Department:       out.Department,
		OrganizationName: out.OrganizationName,
	}, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.handleRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response from backend: %v", session.ErrMalformedToken, err)
	}
	return nil
}

func (c *Client) handleRequestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", session.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", session.ErrTimeout, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: request canceled", session.ErrTransport)
	}
	return fmt.Errorf("%w: cannot connect to backend at %s: %w", session.ErrTransport, c.baseURL, err)
}

func handleErrorResponse(resp *http.Response) error {
	msg := readErrorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &session.AuthenticationError{Status: resp.StatusCode, Message: msg}
	default:
		return &session.StatusError{Status: resp.StatusCode, Message: msg}
	}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		return errResp.Error
	}
	return ""
}
