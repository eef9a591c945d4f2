package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// Event is a session lifecycle notification.
type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventUserUpdated    Event = "user_updated"
	EventTokenRefreshed Event = "token_refreshed"
)

// Handler observes session events. Handlers run synchronously in
// subscription order on the goroutine that triggered the event, so a
// sign-out has fully propagated before SignOut returns.
type Handler func(evt Event, s Session)

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// Manager owns the auth session.
type Manager struct {
	auth   backend.Authenticator
	logger *logger.Logger

	mu       sync.RWMutex
	session  *Session
	handlers []Handler
}

// The manager feeds the signed-in user's bearer token to the transport.
var _ backend.TokenSource = (*Manager)(nil)

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(auth backend.Authenticator, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{auth: auth, logger: log}
}

// Subscribe registers a handler for session events.
func (m *Manager) Subscribe(h Handler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// emit delivers the event outside the session lock so handlers can read
// Current.
func (m *Manager) emit(evt Event, s Session) {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(evt, s)
	}
}

func (m *Manager) setSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

// Current returns a snapshot of the session, if signed in.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// IsSignedIn reports whether a session exists.
func (m *Manager) IsSignedIn() bool {
	_, ok := m.Current()
	return ok
}

// AccessToken implements backend.TokenSource. It returns the current access
// token even when expired; the backend answers 401 and the caller refreshes.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// SignIn authenticates with the backend and establishes a session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, domain.NewDomainError("session", "SignIn", domain.ErrEmptyValue, "email and password are required")
	}

	token, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		if credentialsRejected(err) {
			return Session{}, domain.WrapError("session", "SignIn", domain.ErrUnauthorized, "invalid email or password", err)
		}
		return Session{}, domain.WrapError("session", "SignIn", domain.ErrExternalService, "could not reach the sign-in service", err)
	}

	s, err := sessionFromToken(token)
	if err != nil {
		return Session{}, domain.WrapError("session", "SignIn", domain.ErrExternalService, "sign in returned an unusable token", err)
	}

	m.setSession(s)
	m.logger.Info("signed in", "user_id", s.UserID, "user_type", string(s.UserType))
	m.emit(EventSignedIn, s)
	return s, nil
}

// Restore re-establishes a session from a persisted refresh token, for app
// startup.
func (m *Manager) Restore(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, domain.NewDomainError("session", "Restore", domain.ErrEmptyValue, "refresh token is required")
	}

	token, err := m.auth.RefreshToken(ctx, refreshToken)
	if err != nil {
		if credentialsRejected(err) {
			return Session{}, domain.WrapError("session", "Restore", domain.ErrUnauthorized, "saved session is no longer valid", err)
		}
		return Session{}, domain.WrapError("session", "Restore", domain.ErrExternalService, "could not restore the session", err)
	}

	s, err := sessionFromToken(token)
	if err != nil {
		return Session{}, domain.WrapError("session", "Restore", domain.ErrExternalService, "restore returned an unusable token", err)
	}

	m.setSession(s)
	m.logger.Info("session restored", "user_id", s.UserID)
	m.emit(EventSignedIn, s)
	return s, nil
}

// Refresh exchanges the refresh token for a new token pair. A rejected
// grant ends the session.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	current, ok := m.Current()
	if !ok {
		return Session{}, domain.ErrNotSignedIn
	}

	token, err := m.auth.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		if credentialsRejected(err) {
			m.logger.Warn("refresh grant rejected, signing out", "user_id", current.UserID, "error", err.Error())
			m.clearSession()
			m.emit(EventSignedOut, current)
			return Session{}, domain.ErrSessionExpired
		}
		return Session{}, domain.WrapError("session", "Refresh", domain.ErrExternalService, "could not refresh the session", err)
	}

	s, err := sessionFromToken(token)
	if err != nil {
		return Session{}, domain.WrapError("session", "Refresh", domain.ErrExternalService, "refresh returned an unusable token", err)
	}

	m.setSession(s)
	m.emit(EventTokenRefreshed, s)
	return s, nil
}

// SignOut revokes the session server-side and clears it locally. The local
// sign-out always completes: a failed revocation is logged and the token is
// left to expire on its own.
func (m *Manager) SignOut(ctx context.Context) error {
	current, ok := m.Current()
	if !ok {
		return domain.ErrNotSignedIn
	}

	if err := m.auth.SignOut(ctx, current.AccessToken); err != nil {
		m.logger.Warn("server-side sign-out failed", "user_id", current.UserID, "error", err.Error())
	}

	m.clearSession()
	m.logger.Info("signed out", "user_id", current.UserID)
	m.emit(EventSignedOut, current)
	return nil
}

// NotifyUserUpdated broadcasts that the signed-in user's profile changed.
func (m *Manager) NotifyUserUpdated() {
	if s, ok := m.Current(); ok {
		m.emit(EventUserUpdated, s)
	}
}

// credentialsRejected reports whether the auth endpoint refused the grant
// itself, as opposed to being unreachable or broken.
func credentialsRejected(err error) bool {
	var ae *backend.APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusBadRequest ||
			ae.Status == http.StatusUnauthorized ||
			ae.Status == http.StatusForbidden
	}
	return false
}
