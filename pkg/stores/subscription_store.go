package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/config"
	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultSubscriptionTTL = 60 * time.Second

	subscriptionTable = "subscriptions"

	procCheckout   = "create_checkout_session"
	procPortal     = "create_portal_session"
	procPreview    = "preview_plan_change"
	procChangePlan = "change_plan"
	procCancel     = "cancel_subscription"
)

type subscriptionRow struct {
	StudentID string     `json:"student_id"`
	Tier      string     `json:"tier"`
	RenewsAt  *time.Time `json:"renews_at"`
}

type planChangePayload struct {
	FromTier  string `json:"from_tier"`
	ToTier    string `json:"to_tier"`
	AmountDue int    `json:"amount_due"`
	Currency  string `json:"currency"`
}

// SubscriptionStoreConfig configures a SubscriptionStore.
type SubscriptionStoreConfig struct {
	Querier backend.RowQuerier
	Caller  backend.ProcedureCaller
	Viewer  Viewer

	// Features, when set, lets the open-gate flag treat every tier as
	// detail-allowed.
	Features *config.FeatureFlags

	TTL    time.Duration
	Logger *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// SubscriptionStore owns billing state: a short-TTL per-student cache of
// SubscriptionStatus (it gates detail reads elsewhere, so upgrades must
// surface quickly) and the checkout/portal/plan-change procedure wrappers.
// Payment logic is entirely server-side; this store only carries the
// results.
type SubscriptionStore struct {
	loadingFlag

	querier  backend.RowQuerier
	caller   backend.ProcedureCaller
	viewer   Viewer
	features *config.FeatureFlags
	ttl      time.Duration
	logger   *logger.Logger

	statuses *cache.Keyed[string, domain.SubscriptionStatus]
}

var (
	_ Store      = (*SubscriptionStore)(nil)
	_ DetailGate = (*SubscriptionStore)(nil)
)

// NewSubscriptionStore creates a SubscriptionStore.
func NewSubscriptionStore(cfg SubscriptionStoreConfig) *SubscriptionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSubscriptionTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &SubscriptionStore{
		querier:  cfg.Querier,
		caller:   cfg.Caller,
		viewer:   cfg.Viewer,
		features: cfg.Features,
		ttl:      cfg.TTL,
		logger:   cfg.Logger.Named("subscription"),
		statuses: cache.NewKeyedWithClock[string, domain.SubscriptionStatus](cfg.Clock),
	}
}

func (s *SubscriptionStore) Name() string { return "subscription" }

// Reset drops every cached status.
func (s *SubscriptionStore) Reset() { s.statuses.Reset() }

// StatusFor returns the subscription status for one student, cached per
// student. A student with no subscription row is on the free plan; that is
// a normal state, not an error.
func (s *SubscriptionStore) StatusFor(ctx context.Context, studentID string) (domain.SubscriptionStatus, error) {
	if studentID == "" {
		return domain.SubscriptionStatus{}, domain.NewDomainError("subscription", "StatusFor", domain.ErrEmptyValue, "student id is required")
	}

	s.begin()
	defer s.end()

	status, err := s.statuses.Fetch(ctx, studentID, cache.FetchOptions{TTL: s.ttl}, func(ctx context.Context) (domain.SubscriptionStatus, error) {
		var rows []subscriptionRow
		q := backend.NewQuery(subscriptionTable).Eq("student_id", studentID).Limit(1)
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return domain.SubscriptionStatus{}, wrapBackend("subscription", "StatusFor", "could not check the subscription", err)
		}
		if len(rows) == 0 {
			return domain.NewSubscriptionStatus(domain.TierCore), nil
		}
		status := domain.NewSubscriptionStatus(domain.ParseTier(rows[0].Tier))
		status.RenewsAt = rows[0].RenewsAt
		return status, nil
	})
	if err != nil {
		return status, err
	}

	if s.gateOpen() {
		status.CanViewDetailedResults = true
	}
	return status, nil
}

// CanViewDetailedResults reports whether the student's plan (or the open
// gate) unlocks per-answer session detail.
func (s *SubscriptionStore) CanViewDetailedResults(ctx context.Context, studentID string) (bool, error) {
	status, err := s.StatusFor(ctx, studentID)
	if err != nil {
		return false, err
	}
	return status.CanViewDetailedResults, nil
}

// gateOpen evaluates the open-gate feature flag for the current viewer. The
// flag only widens the gate; the cached status keeps the student's real
// tier.
func (s *SubscriptionStore) gateOpen() bool {
	if s.features == nil {
		return false
	}
	sess, ok := s.viewer.Current()
	if !ok {
		return false
	}
	return s.features.SubscriptionGateOpen(&config.FeatureContext{
		UserID:  sess.UserID,
		IsAdmin: sess.UserType.IsAdmin(),
	})
}

// Checkout opens a hosted payment page for moving the student onto tier.
func (s *SubscriptionStore) Checkout(ctx context.Context, studentID string, tier domain.Tier) (domain.CheckoutLink, error) {
	if !tier.IsValid() || tier == domain.TierCore {
		return domain.CheckoutLink{}, domain.NewDomainError("subscription", "Checkout", domain.ErrInvalidInput, "choose a paid plan to check out")
	}
	if _, err := currentSession(s.viewer); err != nil {
		return domain.CheckoutLink{}, err
	}

	s.begin()
	defer s.end()

	var link domain.CheckoutLink
	args := map[string]any{"student_id": studentID, "tier": string(tier)}
	if err := s.caller.Call(ctx, procCheckout, args, &link); err != nil {
		return domain.CheckoutLink{}, wrapBackend("subscription", "Checkout", "could not start checkout", err)
	}
	return link, nil
}

// Portal opens the hosted billing-management page for the current user.
func (s *SubscriptionStore) Portal(ctx context.Context) (domain.PortalLink, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.PortalLink{}, err
	}

	s.begin()
	defer s.end()

	var link domain.PortalLink
	if err := s.caller.Call(ctx, procPortal, map[string]any{"user_id": sess.UserID}, &link); err != nil {
		return domain.PortalLink{}, wrapBackend("subscription", "Portal", "could not open the billing portal", err)
	}
	return link, nil
}

// PreviewChange quotes what switching the student to another tier would
// cost, without committing anything.
func (s *SubscriptionStore) PreviewChange(ctx context.Context, studentID string, to domain.Tier) (domain.PlanChangePreview, error) {
	if !to.IsValid() {
		return domain.PlanChangePreview{}, domain.NewDomainError("subscription", "PreviewChange", domain.ErrInvalidInput, "unknown plan")
	}

	s.begin()
	defer s.end()

	var payload planChangePayload
	args := map[string]any{"student_id": studentID, "to_tier": string(to)}
	if err := s.caller.Call(ctx, procPreview, args, &payload); err != nil {
		return domain.PlanChangePreview{}, wrapBackend("subscription", "PreviewChange", "could not preview the plan change", err)
	}
	return domain.PlanChangePreview{
		FromTier:  domain.ParseTier(payload.FromTier),
		ToTier:    domain.ParseTier(payload.ToTier),
		AmountDue: payload.AmountDue,
		Currency:  payload.Currency,
	}, nil
}

// ChangePlan commits a tier switch and returns the fresh status. The cached
// status is dropped first so the gate reflects the new plan immediately.
func (s *SubscriptionStore) ChangePlan(ctx context.Context, studentID string, to domain.Tier) (domain.SubscriptionStatus, error) {
	if !to.IsValid() {
		return domain.SubscriptionStatus{}, domain.NewDomainError("subscription", "ChangePlan", domain.ErrInvalidInput, "unknown plan")
	}

	s.begin()
	args := map[string]any{"student_id": studentID, "to_tier": string(to)}
	err := s.caller.Call(ctx, procChangePlan, args, nil)
	s.end()
	if err != nil {
		return domain.SubscriptionStatus{}, wrapBackend("subscription", "ChangePlan", "could not change the plan", err)
	}

	s.statuses.ResetKey(studentID)
	return s.StatusFor(ctx, studentID)
}

// Cancel ends the student's subscription at the backend and drops the
// cached status.
func (s *SubscriptionStore) Cancel(ctx context.Context, studentID string) error {
	s.begin()
	defer s.end()

	if err := s.caller.Call(ctx, procCancel, map[string]any{"student_id": studentID}, nil); err != nil {
		return wrapBackend("subscription", "Cancel", "could not cancel the subscription", err)
	}
	s.statuses.ResetKey(studentID)
	return nil
}
