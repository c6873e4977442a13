// Package token decodes bearer JWTs issued by the portal backend and
// evaluates their expiry. Signatures are never verified here: the client only
// reads the exp and role claims, and the backend remains the authority.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned for any token that is not a decodable three-part
// JWT with a JSON object payload.
var ErrMalformed = errors.New("malformed token")

// Claims is the decoded payload of a token.
type Claims = jwt.MapClaims

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// CheckShape reports whether raw looks like a JWT: non-empty with exactly
// three non-empty dot-separated segments. The payload is not decoded.
func CheckShape(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: segment %d is empty", ErrMalformed, i)
		}
	}
	return nil
}

// DecodeClaims base64url-decodes and parses the payload segment of raw.
func DecodeClaims(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrMalformed, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: parsing payload: %v", ErrMalformed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	return claims, nil
}

// Expiry returns the exp claim in Unix seconds. A missing or non-numeric
// claim is reported as ErrMalformed.
func Expiry(claims Claims) (int64, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("%w: exp: %v", ErrMalformed, err)
	}
	if exp == nil {
		return 0, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	return exp.Unix(), nil
}

// IsExpired reports whether raw is expired at nowSeconds. Tokens that cannot
// be decoded, or that carry no usable exp, are expired. A token whose exp
// equals nowSeconds is expired.
func IsExpired(raw string, nowSeconds int64) bool {
	claims, err := DecodeClaims(raw)
	if err != nil {
		return true
	}
	exp, err := Expiry(claims)
	if err != nil {
		return true
	}
	return nowSeconds >= exp
}

// ExtractRoles reads the role claim, falling back to authorities when role is
// absent or empty. A string yields one role, a list of strings is returned as
// is, and a list of {"authority": ...} objects is projected to the authority
// values. Any other shape yields an empty slice.
func ExtractRoles(claims Claims) []string {
	if roles := rolesFrom(claims["role"]); len(roles) > 0 {
		return roles
	}
	if roles := rolesFrom(claims["authorities"]); len(roles) > 0 {
		return roles
	}
	return []string{}
}

func rolesFrom(v any) []string {
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			switch item := item.(type) {
			case string:
				roles = append(roles, item)
			case map[string]any:
				if a, ok := item["authority"].(string); ok {
					roles = append(roles, a)
				}
			}
		}
		return roles
	}
	return nil
}
