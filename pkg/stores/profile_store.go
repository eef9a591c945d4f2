package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/session"
)

const (
	defaultProfileTTL = 5 * time.Minute

	profileTable = "profiles"
	avatarBucket = "avatars"
)

type profileRow struct {
	ID           string    `json:"id"`
	UserType     string    `json:"user_type"`
	DisplayName  string    `json:"display_name"`
	GradeLevelID string    `json:"grade_level_id"`
	Coins        int       `json:"coins"`
	Food         int       `json:"food"`
	AvatarPath   string    `json:"avatar_path"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r profileRow) toDomain() domain.Profile {
	return domain.Profile{
		ID:           r.ID,
		UserType:     domain.ParseUserType(r.UserType),
		DisplayName:  r.DisplayName,
		GradeLevelID: r.GradeLevelID,
		Coins:        r.Coins,
		Food:         r.Food,
		AvatarPath:   r.AvatarPath,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ProfileStoreConfig configures a ProfileStore.
type ProfileStoreConfig struct {
	Querier backend.RowQuerier
	Storage backend.ObjectStorage
	Viewer  Viewer
	TTL     time.Duration
	Logger  *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// ProfileStore owns the signed-in user's profile row: display identity,
// grade level, and the coin/food balances the pet economy spends.
type ProfileStore struct {
	loadingFlag

	querier backend.RowQuerier
	storage backend.ObjectStorage
	viewer  Viewer
	ttl     time.Duration
	logger  *logger.Logger

	profile *cache.Value[domain.Profile]
}

var (
	_ Store          = (*ProfileStore)(nil)
	_ BalancePatcher = (*ProfileStore)(nil)
)

// NewProfileStore creates a ProfileStore.
func NewProfileStore(cfg ProfileStoreConfig) *ProfileStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultProfileTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &ProfileStore{
		querier: cfg.Querier,
		storage: cfg.Storage,
		viewer:  cfg.Viewer,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.Named("profile"),
		profile: cache.NewWithClock[domain.Profile](cfg.Clock),
	}
}

func (s *ProfileStore) Name() string { return "profile" }

// Reset drops the cached profile.
func (s *ProfileStore) Reset() { s.profile.Reset() }

// BindSession reacts to session lifecycle events: sign-in warms the cache,
// a user update forces a refresh, sign-out resets. Warm-up failures are
// logged and the next read retries; the sign-in itself has already
// succeeded.
func (s *ProfileStore) BindSession(events SessionEvents) {
	events.Subscribe(func(evt session.Event, _ session.Session) {
		switch evt {
		case session.EventSignedIn:
			if _, err := s.Current(context.Background()); err != nil {
				s.logger.Warn("profile warm-up failed", "error", err)
			}
		case session.EventUserUpdated:
			if _, err := s.Refresh(context.Background()); err != nil {
				s.logger.Warn("profile refresh failed", "error", err)
			}
		case session.EventSignedOut:
			s.Reset()
		}
	})
}

// Current returns the signed-in user's profile, served from cache while
// fresh.
func (s *ProfileStore) Current(ctx context.Context) (domain.Profile, error) {
	return s.fetch(ctx, false)
}

// Refresh bypasses the cache and fetches the profile row again.
func (s *ProfileStore) Refresh(ctx context.Context) (domain.Profile, error) {
	return s.fetch(ctx, true)
}

func (s *ProfileStore) fetch(ctx context.Context, force bool) (domain.Profile, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.Profile{}, err
	}

	s.begin()
	defer s.end()

	return s.profile.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: force}, func(ctx context.Context) (domain.Profile, error) {
		var rows []profileRow
		q := backend.NewQuery(profileTable).Eq("id", sess.UserID).Limit(1)
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return domain.Profile{}, wrapBackend("profile", "Fetch", "could not load your profile", err)
		}
		if len(rows) == 0 {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		return rows[0].toDomain(), nil
	})
}

// PatchBalances applies authoritative coin/food balances reported by an
// economy procedure. A nil field leaves that balance alone. No-op when the
// profile was never fetched; the first fetch will read fresh balances
// anyway.
func (s *ProfileStore) PatchBalances(coins, food *int) {
	s.profile.Mutate(func(p *domain.Profile) {
		if coins != nil {
			p.Coins = *coins
		}
		if food != nil {
			p.Food = *food
		}
	})
}

// AvatarURL builds the public CDN URL for the profile's avatar, resized
// server-side to size x size and cache-busted by the profile's last update
// time. Returns "" when no avatar has been uploaded.
func (s *ProfileStore) AvatarURL(p domain.Profile, size int) string {
	if !p.HasAvatar() {
		return ""
	}
	transform := &backend.ImageTransform{
		Width:   size,
		Height:  size,
		Quality: 80,
		Resize:  "cover",
	}
	return s.storage.PublicURL(avatarBucket, p.AvatarPath, transform, p.UpdatedAt.Unix())
}
