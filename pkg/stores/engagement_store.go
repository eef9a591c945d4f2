package stores

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/timeutil"
)

const (
	defaultEngagementTTL = 5 * time.Minute

	// engagementMonths is how far back the monthly activity chart reaches,
	// current month included.
	engagementMonths = 6

	engagementTable = "engagement_stats"
)

type engagementRow struct {
	StudentID         string     `json:"student_id"`
	CurrentStreakDays int        `json:"current_streak_days"`
	LongestStreakDays int        `json:"longest_streak_days"`
	SessionsThisWeek  int        `json:"sessions_this_week"`
	MinutesThisWeek   int        `json:"minutes_this_week"`
	LastPracticeAt    *time.Time `json:"last_practice_at"`
}

type activityRow struct {
	CreatedAt        time.Time `json:"created_at"`
	TotalTimeSeconds int       `json:"total_time_seconds"`
}

// EngagementStoreConfig configures an EngagementStore.
type EngagementStoreConfig struct {
	Querier backend.RowQuerier
	Viewer  Viewer
	TTL     time.Duration
	Logger  *logger.Logger

	// Clock overrides time.Now for staleness checks and the month window.
	// Tests only.
	Clock func() time.Time
}

// EngagementStore owns per-student practice engagement: the precomputed
// streak counters and a six-month activity series bucketed client-side from
// raw session rows. Parents read several students, so the cache is keyed by
// student id.
type EngagementStore struct {
	loadingFlag

	querier backend.RowQuerier
	viewer  Viewer
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time

	stats *cache.Keyed[string, domain.EngagementStats]
}

var _ Store = (*EngagementStore)(nil)

// NewEngagementStore creates an EngagementStore.
func NewEngagementStore(cfg EngagementStoreConfig) *EngagementStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultEngagementTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &EngagementStore{
		querier: cfg.Querier,
		viewer:  cfg.Viewer,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.Named("engagement"),
		now:     cfg.Clock,
		stats:   cache.NewKeyedWithClock[string, domain.EngagementStats](cfg.Clock),
	}
}

func (s *EngagementStore) Name() string { return "engagement" }

// Reset drops every student's cached stats.
func (s *EngagementStore) Reset() { s.stats.Reset() }

// ResetStudent drops one student's cached stats.
func (s *EngagementStore) ResetStudent(studentID string) { s.stats.ResetKey(studentID) }

// StatsFor returns engagement stats for one student, cached per student.
// The streak counters and the raw sessions for the monthly series load
// concurrently; either failing fails the read, so a cached entry is always
// internally consistent.
func (s *EngagementStore) StatsFor(ctx context.Context, studentID string) (domain.EngagementStats, error) {
	if studentID == "" {
		return domain.EngagementStats{}, domain.NewDomainError("engagement", "StatsFor", domain.ErrEmptyValue, "student id is required")
	}
	if _, err := currentSession(s.viewer); err != nil {
		return domain.EngagementStats{}, err
	}

	s.begin()
	defer s.end()

	return s.stats.Fetch(ctx, studentID, cache.FetchOptions{TTL: s.ttl}, func(ctx context.Context) (domain.EngagementStats, error) {
		return s.fetchStats(ctx, studentID)
	})
}

func (s *EngagementStore) fetchStats(ctx context.Context, studentID string) (domain.EngagementStats, error) {
	now := s.now()
	windowStart := timeutil.StartOfMonth(now).AddDate(0, -(engagementMonths - 1), 0)

	var (
		statsRows    []engagementRow
		activityRows []activityRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := backend.NewQuery(engagementTable).Eq("student_id", studentID).Limit(1)
		if err := s.querier.Select(gctx, q, &statsRows); err != nil {
			return wrapBackend("engagement", "StatsFor", "could not load engagement stats", err)
		}
		return nil
	})
	g.Go(func() error {
		q := backend.NewQuery(sessionTable).
			Select("created_at,total_time_seconds").
			Eq("student_id", studentID).
			Gte("created_at", windowStart)
		if err := s.querier.Select(gctx, q, &activityRows); err != nil {
			return wrapBackend("engagement", "StatsFor", "could not load practice activity", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.EngagementStats{}, err
	}

	// A student with no stats row simply has not practiced yet.
	stats := domain.EngagementStats{StudentID: studentID}
	if len(statsRows) > 0 {
		r := statsRows[0]
		stats.CurrentStreakDays = r.CurrentStreakDays
		stats.LongestStreakDays = r.LongestStreakDays
		stats.SessionsThisWeek = r.SessionsThisWeek
		stats.MinutesThisWeek = r.MinutesThisWeek
		stats.LastPracticeAt = r.LastPracticeAt
	}
	stats.Monthly = bucketByMonth(activityRows, now)
	return stats, nil
}

// bucketByMonth groups raw session rows into the chart's month series. Every
// month in the window is present even when empty, oldest first.
func bucketByMonth(rows []activityRow, now time.Time) []domain.MonthlyActivity {
	type bucket struct {
		sessions int
		seconds  int
	}
	buckets := make(map[string]bucket, engagementMonths)
	for _, r := range rows {
		key := timeutil.MonthKey(r.CreatedAt)
		b := buckets[key]
		b.sessions++
		b.seconds += r.TotalTimeSeconds
		buckets[key] = b
	}

	keys := timeutil.MonthKeysBack(now, engagementMonths)
	monthly := make([]domain.MonthlyActivity, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		monthly = append(monthly, domain.MonthlyActivity{
			Month:    key,
			Sessions: b.sessions,
			Minutes:  b.seconds / 60,
		})
	}
	return monthly
}
