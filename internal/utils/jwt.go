package utils // package utils provides helper functions for token creation

import (
	"errors"
	"strings"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are sent in the Authorization
// header when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  It takes the
// signing secret, the user ID, the user's role, and a TTL.  The JWT
// includes the standard claims: subject (sub), expiration (exp) and
// issued at (iat), plus role.  Tokens are normally issued by the
// authentication service; this service mints them for tooling and tests.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
	if strings.TrimSpace(secret) == "" {
		return AccessToken{}, errors.New("jwt secret is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return AccessToken{}, errors.New("user id is empty")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
