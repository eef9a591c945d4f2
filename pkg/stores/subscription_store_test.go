package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypet-hub/studypet-hub/config"
	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/backend/backendtest"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

const proSubscriptionJSON = `[{
	"student_id": "stu-1",
	"tier": "pro",
	"renews_at": "2026-04-01T00:00:00Z"
}]`

func newSubscriptionStore(fake *backendtest.Fake, clock *fakeClock, viewer Viewer, flags *config.FeatureFlags) *SubscriptionStore {
	return NewSubscriptionStore(SubscriptionStoreConfig{
		Querier:  fake,
		Caller:   fake,
		Viewer:   viewer,
		Features: flags,
		Clock:    clock.Now,
	})
}

// openGateFlags builds flags unaffected by whatever FEATURE_* variables the
// environment happens to carry.
func openGateFlags(t *testing.T) *config.FeatureFlags {
	t.Setenv("FEATURE_SUBSCRIPTION_OPEN_GATE", "")
	return config.LoadFeatureFlags()
}

func TestSubscriptionStatusDefaultsToFreePlan(t *testing.T) {
	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCore, status.Tier, "no subscription row means the free plan")
	assert.False(t, status.CanViewDetailedResults)
	assert.Nil(t, status.RenewsAt)

	q := fake.Selects()[0]
	assert.Equal(t, subscriptionTable, q.Table)
	assert.Equal(t, []backend.Filter{{Column: "student_id", Op: backend.OpEq, Value: "stu-1"}}, q.Filters)
	assert.Equal(t, 1, q.LimitN)
}

func TestSubscriptionStatusForPaidPlan(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(subscriptionTable, proSubscriptionJSON)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, status.Tier)
	assert.True(t, status.CanViewDetailedResults)
	require.NotNil(t, status.RenewsAt)
	assert.Equal(t, "2026-04-01", status.RenewsAt.Format("2006-01-02"))
}

func TestSubscriptionUnknownTierStaysGated(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(subscriptionTable, `[{"student_id": "stu-1", "tier": "enterprise"}]`)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierCore, status.Tier, "an unknown plan string must not unlock anything")
	assert.False(t, status.CanViewDetailedResults)
}

func TestSubscriptionStatusCachedPerStudent(t *testing.T) {
	fake := backendtest.New()
	clock := newFakeClock()
	store := newSubscriptionStore(fake, clock, studentViewer("stu-1"), nil)

	_, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	_, err = store.StatusFor(context.Background(), "stu-2")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.SelectCount(subscriptionTable), "each student has their own entry")

	_, err = store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.SelectCount(subscriptionTable), "a fresh status must be served from cache")

	clock.Advance(defaultSubscriptionTTL)
	_, err = store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.SelectCount(subscriptionTable), "an expired status must refetch")
}

func TestSubscriptionRequiresStudentID(t *testing.T) {
	store := newSubscriptionStore(backendtest.New(), newFakeClock(), studentViewer("stu-1"), nil)

	_, err := store.StatusFor(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyValue)
}

func TestCanViewDetailedResultsFollowsTier(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(subscriptionTable, proSubscriptionJSON)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	allowed, err := store.CanViewDetailedResults(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestOpenGateAppliesAtReadTime(t *testing.T) {
	flags := openGateFlags(t)
	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), flags)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.False(t, status.CanViewDetailedResults, "the gate is closed by default")

	require.NoError(t, flags.EnableFeature(config.FeatureSubscriptionOpenGate))

	// The cached entry was written while the gate was closed; the flag is
	// evaluated on every read, so the same entry now comes back open.
	status, err = store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, status.CanViewDetailedResults)
	assert.Equal(t, domain.TierCore, status.Tier, "the flag widens the gate, never the plan")
	assert.Equal(t, 1, fake.SelectCount(subscriptionTable))
}

func TestOpenGateNeedsAViewer(t *testing.T) {
	flags := openGateFlags(t)
	require.NoError(t, flags.EnableFeature(config.FeatureSubscriptionOpenGate))

	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), signedOutViewer(), flags)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.False(t, status.CanViewDetailedResults, "no viewer means no flag context, so the gate stays closed")
}

func TestCheckoutRejectsTheFreePlan(t *testing.T) {
	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	_, err := store.Checkout(context.Background(), "stu-1", domain.TierCore)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Checkout(context.Background(), "stu-1", domain.Tier("gold"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Empty(t, fake.Calls(), "an invalid plan must never reach the backend")
}

func TestCheckoutRequiresSession(t *testing.T) {
	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), signedOutViewer(), nil)

	_, err := store.Checkout(context.Background(), "stu-1", domain.TierPlus)
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
	assert.Empty(t, fake.Calls())
}

func TestCheckoutReturnsHostedLink(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procCheckout, `{"url": "https://pay.studypet.test/cs_123"}`)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	link, err := store.Checkout(context.Background(), "stu-1", domain.TierPlus)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.studypet.test/cs_123", link.URL)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, procCheckout, calls[0].Procedure)
	assert.Equal(t, map[string]any{"student_id": "stu-1", "tier": "plus"}, calls[0].Args)
}

func TestPortalUsesTheCurrentUser(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procPortal, `{"url": "https://pay.studypet.test/portal"}`)
	store := newSubscriptionStore(fake, newFakeClock(), viewerOf("parent-1", domain.UserTypeParent), nil)

	link, err := store.Portal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.studypet.test/portal", link.URL)
	assert.Equal(t, map[string]any{"user_id": "parent-1"}, fake.Calls()[0].Args)
}

func TestPreviewChangeMapsTheQuote(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procPreview, `{"from_tier": "core", "to_tier": "pro", "amount_due": 4900, "currency": "KZT"}`)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	preview, err := store.PreviewChange(context.Background(), "stu-1", domain.TierPro)
	require.NoError(t, err)

	assert.Equal(t, domain.PlanChangePreview{
		FromTier:  domain.TierCore,
		ToTier:    domain.TierPro,
		AmountDue: 4900,
		Currency:  "KZT",
	}, preview)
}

func TestChangePlanRefreshesTheStatus(t *testing.T) {
	fake := backendtest.New()
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierCore, status.Tier)

	fake.QueueResult(procChangePlan, `{"success": true}`)
	fake.QueueRows(subscriptionTable, proSubscriptionJSON)

	status, err = store.ChangePlan(context.Background(), "stu-1", domain.TierPro)
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, status.Tier, "the returned status must reflect the committed change")
	assert.Equal(t, 2, fake.SelectCount(subscriptionTable), "a plan change must drop the cached status")
	assert.Equal(t, 1, fake.CallCount(procChangePlan))
}

func TestCancelDropsTheCachedStatus(t *testing.T) {
	fake := backendtest.New()
	fake.QueueRows(subscriptionTable, proSubscriptionJSON)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	_, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)

	require.NoError(t, store.Cancel(context.Background(), "stu-1"))

	status, err := store.StatusFor(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierCore, status.Tier)
	assert.Equal(t, 2, fake.SelectCount(subscriptionTable))
}

func TestCheckoutSurfacesTheProcedureMessage(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procCheckout, `{"success": false, "error": "card declined"}`)
	store := newSubscriptionStore(fake, newFakeClock(), studentViewer("stu-1"), nil)

	_, err := store.Checkout(context.Background(), "stu-1", domain.TierPlus)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "card declined", domain.ErrorMessage(err, "unused"))
}
