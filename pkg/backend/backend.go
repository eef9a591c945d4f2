// Package backend defines the surface this layer consumes from the hosted
// backend-as-a-service: row queries, remote procedures, authentication, and
// public object storage. Two adapters implement it - pkg/backend/postgrest
// speaks the hosted HTTP API, pkg/backend/postgres runs the same queries
// directly against the database for colocated deployments - and
// pkg/backend/backendtest provides the in-memory fake the store tests use.
package backend

import (
	"context"
	"time"
)

// RowQuerier reads rows. Select fills dest (a pointer to a slice of row
// structs) from the JSON-array representation of the result set, so both
// adapters share decode semantics. Count answers "how many rows match"
// without transferring them - the leaderboard uses it to size windows that
// must not truncate a tied group.
type RowQuerier interface {
	Select(ctx context.Context, q Query, dest any) error
	Count(ctx context.Context, q Query) (int, error)
}

// InsertOptions controls write behavior for Insert.
type InsertOptions struct {
	// IgnoreDuplicates makes inserts that hit a unique constraint succeed
	// silently. Used for idempotent writes such as read receipts.
	IgnoreDuplicates bool
}

// RowWriter mutates the few client-writable tables.
type RowWriter interface {
	Insert(ctx context.Context, table string, rows any, opts InsertOptions) error
	Update(ctx context.Context, q Query, values map[string]any) error
	Delete(ctx context.Context, q Query) error
}

// ProcedureCaller invokes named server-side functions. Procedures own all
// privileged or transactional logic (gacha draws, pet evolution, payments);
// they return a JSON object with a "success" flag, and a false flag is
// surfaced as a *ProcedureError rather than decoded into dest.
type ProcedureCaller interface {
	Call(ctx context.Context, fn string, args map[string]any, dest any) error
}

// Token is an issued auth session.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"-"`
}

// IsExpired reports whether the access token is past its expiry. A zero
// expiry is treated as not expiring.
func (t *Token) IsExpired() bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(t.ExpiresAt)
}

// Authenticator is the backend auth API.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	SignOut(ctx context.Context, accessToken string) error
}

// TokenSource supplies the bearer token attached to authenticated requests.
// An empty string means "no session" and the request goes out with only the
// API key.
type TokenSource interface {
	AccessToken() string
}

// ImageTransform is passed through to the CDN for server-side resizing.
type ImageTransform struct {
	Width   int
	Height  int
	Quality int
	Resize  string // "cover", "contain", or "fill"
}

// ObjectStorage builds public URLs for stored objects. Version, when
// non-zero, is appended as a cache-busting query parameter; callers derive
// it from the owning entity's last-updated timestamp.
type ObjectStorage interface {
	PublicURL(bucket, path string, transform *ImageTransform, version int64) string
}
