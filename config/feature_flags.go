package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles. Supports gradual rollout, per-user
// overrides, grade targeting, and time-windowed activation (event banners,
// seasonal features).
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // user ID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Grade targeting (e.g. pilot a feature for grades 7-8 only)
	// Empty means all grades
	TargetGrades []int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string // account ID
	Grade   int    // student grade, 0 if unknown
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Pet Features ===
	FeaturePetGacha   = "pets.gacha"   // Coin-funded pet draws
	FeaturePetCombine = "pets.combine" // Combine four max-tier pets

	// === Leaderboard Features ===
	FeatureLeaderboardWeekly = "leaderboard.weekly" // Weekly standings tab

	// === Subscription Features ===
	FeatureSubscriptionOpenGate = "subscription.open_gate" // Detail views for every tier

	// === Engagement Features ===
	FeatureEngagementHeatmap = "engagement.heatmap" // Activity heatmap widget
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeaturePetGacha] = &Feature{
		Name:           FeaturePetGacha,
		Description:    "Spend coins to draw new pets",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeaturePetCombine] = &Feature{
		Name:           FeaturePetCombine,
		Description:    "Combine four max-tier pets into a rarer one",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardWeekly] = &Feature{
		Name:           FeatureLeaderboardWeekly,
		Description:    "Weekly standings alongside all-time",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Disabled by default: opening the gate shows detailed results to every
	// tier, which is a pricing decision, not an engineering one.
	ff.features[FeatureSubscriptionOpenGate] = &Feature{
		Name:           FeatureSubscriptionOpenGate,
		Description:    "Treat every tier as detail-allowed",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureEngagementHeatmap] = &Feature{
		Name:           FeatureEngagementHeatmap,
		Description:    "Practice activity heatmap",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_PETS_GACHA=false
// Example: FEATURE_LEADERBOARD_WEEKLY=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "pets.gacha" -> "FEATURE_PETS_GACHA"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check grade targeting
	if len(feature.TargetGrades) > 0 && ctx != nil && ctx.Grade != 0 {
		gradeMatch := false
		for _, g := range feature.TargetGrades {
			if g == ctx.Grade {
				gradeMatch = true
				break
			}
		}
		if !gradeMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// GachaEnabled checks if coin-funded pet draws are available.
func (ff *FeatureFlags) GachaEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeaturePetGacha, ctx)
}

// LeaderboardWeeklyEnabled checks if the weekly standings tab is available.
func (ff *FeatureFlags) LeaderboardWeeklyEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureLeaderboardWeekly, ctx)
}

// SubscriptionGateOpen reports whether detail views are open to every tier,
// regardless of subscription.
func (ff *FeatureFlags) SubscriptionGateOpen(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureSubscriptionOpenGate, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
