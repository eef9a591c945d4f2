package domain

import "time"

// Tier is a subscription plan level.
type Tier string

const (
	TierCore Tier = "core"
	TierPlus Tier = "plus"
	TierPro  Tier = "pro"
	TierMax  Tier = "max"
)

// IsValid checks that the tier is one of the known plans.
func (t Tier) IsValid() bool {
	switch t {
	case TierCore, TierPlus, TierPro, TierMax:
		return true
	default:
		return false
	}
}

// AllowsDetailedResults reports whether the tier unlocks per-answer session
// detail. Only the two top plans do.
func (t Tier) AllowsDetailedResults() bool {
	return t == TierPro || t == TierMax
}

// ParseTier maps a raw plan string to a Tier. Unknown values fall back to
// the free plan so gated content stays gated.
func ParseTier(s string) Tier {
	t := Tier(s)
	if !t.IsValid() {
		return TierCore
	}
	return t
}

// SubscriptionStatus is the per-student gate other stores consult before
// fetching detailed content.
type SubscriptionStatus struct {
	Tier                   Tier       `json:"tier"`
	CanViewDetailedResults bool       `json:"canViewDetailedResults"`
	RenewsAt               *time.Time `json:"renewsAt,omitempty"`
}

// NewSubscriptionStatus derives the gate flag from the tier.
func NewSubscriptionStatus(tier Tier) SubscriptionStatus {
	return SubscriptionStatus{
		Tier:                   tier,
		CanViewDetailedResults: tier.AllowsDetailedResults(),
	}
}

// CheckoutLink is the hosted payment page returned by the checkout
// procedure.
type CheckoutLink struct {
	URL string `json:"url"`
}

// PortalLink is the hosted billing-management page.
type PortalLink struct {
	URL string `json:"url"`
}

// PlanChangePreview describes what switching plans would cost before the
// change is committed. AmountDue is in minor currency units.
type PlanChangePreview struct {
	FromTier  Tier   `json:"fromTier"`
	ToTier    Tier   `json:"toTier"`
	AmountDue int    `json:"amountDue"`
	Currency  string `json:"currency"`
}
