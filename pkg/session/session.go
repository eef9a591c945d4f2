// Package session tracks the signed-in user. The Manager authenticates
// through the backend, keeps the current token pair, and notifies
// subscribers of lifecycle events so stores can react to sign-in and
// sign-out without referencing each other.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

// Session is a snapshot of the signed-in user. Copies are handed out, never
// shared state.
type Session struct {
	UserID       string
	UserType     domain.UserType
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token's lifetime has passed. A zero
// expiry means the backend did not advertise one.
func (s Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// accessTokenClaims are the claims the app reads from the access token.
// The account's user_type rides in the user metadata object.
type accessTokenClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// sessionFromToken builds a session snapshot from a token pair. Claims are
// decoded without signature verification: they drive display and role
// checks only, while the backend enforces row-level authorization on every
// request it serves.
func sessionFromToken(token *backend.Token) (Session, error) {
	var claims accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, &claims); err != nil {
		return Session{}, fmt.Errorf("decode access token: %w", err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("access token has no subject")
	}

	userType := ""
	if v, ok := claims.UserMetadata["user_type"].(string); ok {
		userType = v
	}

	expiresAt := token.ExpiresAt
	if expiresAt.IsZero() && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return Session{
		UserID:       claims.Subject,
		UserType:     domain.ParseUserType(userType),
		Email:        claims.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
