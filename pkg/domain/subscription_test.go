package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierAllowsDetailedResults(t *testing.T) {
	assert.False(t, TierCore.AllowsDetailedResults())
	assert.False(t, TierPlus.AllowsDetailedResults())
	assert.True(t, TierPro.AllowsDetailedResults())
	assert.True(t, TierMax.AllowsDetailedResults())
}

func TestParseTierDefaultsToCore(t *testing.T) {
	assert.Equal(t, TierPro, ParseTier("pro"))
	assert.Equal(t, TierCore, ParseTier(""))
	assert.Equal(t, TierCore, ParseTier("enterprise"))
}

func TestNewSubscriptionStatusDerivesGate(t *testing.T) {
	core := NewSubscriptionStatus(TierCore)
	assert.False(t, core.CanViewDetailedResults)

	max := NewSubscriptionStatus(TierMax)
	assert.True(t, max.CanViewDetailedResults)
}

func TestParseUserTypeDefaultsToStudent(t *testing.T) {
	assert.Equal(t, UserTypeAdmin, ParseUserType("admin"))
	assert.Equal(t, UserTypeStudent, ParseUserType("superuser"))
	assert.Equal(t, UserTypeStudent, ParseUserType(""))
}
