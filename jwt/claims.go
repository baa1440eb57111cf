package jwt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token is not a three-part JWT with a JSON payload.
var ErrMalformedToken = errors.New("malformed token")

// UserID accepts both numeric and string user identifiers; the backend emits integers.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*u = UserID(n.String())
	return nil
}

// AccessClaims is the access-token payload.
type AccessClaims struct {
	UserID     UserID `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	TokenType  string `json:"token_type,omitempty"`
	Generation int64  `json:"gen,omitempty"`
	jwt.RegisteredClaims
}

// Expired reports whether the token carries an exp claim at or before now.
func (c *AccessClaims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// ParseUnverified decodes the claims of token without checking its signature or
// registered-claim validity.
func ParseUnverified(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, ErrMalformedToken
	}

	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}
	return claims, nil
}

func (u UserID) String() string { return string(u) }
