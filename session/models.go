package session

import "time"

// DefaultTokenType is used when a login response omits tokenType.
const DefaultTokenType = "Bearer"

// Credentials are submitted to a realm's login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by a successful login. Admin and
// organization responses omit userId.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Username    string `json:"username"`
	Role        string `json:"role,omitempty"`
}

// Session is the persisted client-side view of an authenticated identity.
// TokenExpiry always comes from the token's exp claim.
type Session struct {
	Realm       Realm     `json:"realm"`
	Token       string    `json:"-"`
	TokenType   string    `json:"tokenType"`
	UserID      string    `json:"userId,omitempty"`
	Username    string    `json:"username"`
	Role        string    `json:"role,omitempty"`
	LoginTime   time.Time `json:"loginTime"`
	TokenExpiry time.Time `json:"tokenExpiry"`
}

// Expired reports whether the session's token is expired at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.TokenExpiry.Unix()
}

// Profile holds the cached identity details shown by consumers.
type Profile struct {
	Name             string `json:"employeeName"`
	Role             string `json:"employeeRole,omitempty"`
	Email            string `json:"email"`
	Department       string `json:"department,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
}

// Reason explains why an Event was published.
type Reason string

const (
	ReasonLogin   Reason = "login"
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

// Event is an authentication state transition. Events are never persisted
// and never replayed to late subscribers.
type Event struct {
	Realm         Realm     `json:"realm"`
	Authenticated bool      `json:"authenticated"`
	Reason        Reason    `json:"reason"`
	At            time.Time `json:"at"`
}
