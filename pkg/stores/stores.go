// Package stores implements the cached state layer between the UI and the
// backend: one store per domain area, each owning its TTL-cached slice of
// state and exposing actions that return plain values and errors.
//
// Stores are created once at startup and registered in a Registry. Signing
// out resets every store synchronously in registration order; each reset is
// self-contained, so no store depends on another's reset having run first.
// Cross-store reads (the pet store asking who is signed in, the session
// store asking whether detail access is allowed) go through the narrow
// interfaces below and are snapshots, never mutations.
package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Store is the uniform reset contract every store implements.
type Store interface {
	// Name identifies the store in logs.
	Name() string

	// Reset drops all cached state, returning the store to its
	// never-fetched condition.
	Reset()
}

// Viewer reports who is currently signed in. *session.Manager satisfies it;
// store actions take the snapshot at call time and never mutate it.
type Viewer interface {
	Current() (session.Session, bool)
}

var _ Viewer = (*session.Manager)(nil)

// SessionEvents is the subscription surface stores bind to. *session.Manager
// satisfies it.
type SessionEvents interface {
	Subscribe(h session.Handler)
}

var _ SessionEvents = (*session.Manager)(nil)

// DetailGate reports whether a student's plan unlocks per-answer session
// detail. *SubscriptionStore implements it; the session store consults it
// before fetching anything gated.
type DetailGate interface {
	CanViewDetailedResults(ctx context.Context, studentID string) (bool, error)
}

// NameResolver resolves a curriculum path to display names, defaulting each
// unresolved level to "Unknown". *CurriculumStore implements it.
type NameResolver interface {
	ResolveNames(ctx context.Context, path domain.CurriculumPath) (domain.CurriculumNames, error)
}

// BalancePatcher accepts authoritative coin and food balances returned by
// economy procedures. *ProfileStore implements it: the profile store owns
// the balances, other stores only hand it the numbers the backend reported.
// A nil field leaves that balance untouched.
type BalancePatcher interface {
	PatchBalances(coins, food *int)
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry holds every store in registration order and fans the sign-out
// reset across them.
type Registry struct {
	mu     sync.Mutex
	stores []Store
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{logger: log}
}

// Register appends stores in the order given. Registration order is reset
// order.
func (r *Registry) Register(stores ...Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, stores...)
}

// ResetAll resets every registered store synchronously, in registration
// order. When it returns, no store holds state from the previous session.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	stores := make([]Store, len(r.stores))
	copy(stores, r.stores)
	r.mu.Unlock()

	for _, s := range stores {
		s.Reset()
		r.logger.Debug("store reset", "store", s.Name())
	}
}

// BindSession wires the registry to session events: sign-out resets all
// stores before the emitting call returns.
func (r *Registry) BindSession(events SessionEvents) {
	events.Subscribe(func(evt session.Event, _ session.Session) {
		if evt == session.EventSignedOut {
			r.ResetAll()
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// loadingFlag is the single shared busy indicator a store exposes through
// IsLoading. Overlapping actions on the same store may flicker it; the flag
// exists for loading spinners, not for synchronization.
type loadingFlag struct {
	busy atomic.Bool
}

func (l *loadingFlag) begin() { l.busy.Store(true) }

func (l *loadingFlag) end() { l.busy.Store(false) }

// IsLoading reports whether an action is currently in flight.
func (l *loadingFlag) IsLoading() bool { return l.busy.Load() }

// patchOrRefetch completes an optimistic update. When the local patch found
// its target nothing more is needed; when the target was missing, exactly
// one collection re-fetch reconciles local state with the backend. The
// remote mutation has already succeeded by the time this runs, so a failed
// re-fetch is returned for logging but the next TTL expiry self-heals.
func patchOrRefetch(ctx context.Context, patched bool, refetch func(ctx context.Context) error) error {
	if patched {
		return nil
	}
	return refetch(ctx)
}

// wrapBackend converts a transport or procedure error into a DomainError
// carrying a UI-ready message. Procedure rejections keep the message the
// server wrote for end users; transport failures get the fallback so HTTP
// internals never reach rendered text.
func wrapBackend(domainName, op, fallback string, err error) error {
	kind := domain.ErrExternalService
	var pe *backend.ProcedureError
	switch {
	case errors.As(err, &pe):
		kind = domain.ErrValidation
	case backend.IsNotFound(err):
		kind = domain.ErrNotFound
	case backend.IsUnauthorized(err):
		kind = domain.ErrUnauthorized
	}
	return domain.WrapError(domainName, op, kind, domain.ErrorMessage(err, fallback), err)
}

// currentSession loads the signed-in session or fails with ErrNotSignedIn
// before any network call is made.
func currentSession(v Viewer) (session.Session, error) {
	s, ok := v.Current()
	if !ok {
		return session.Session{}, domain.ErrNotSignedIn
	}
	return s, nil
}
