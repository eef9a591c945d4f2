package stores

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/timeutil"
)

const (
	procActiveToday  = "count_active_students_today"
	procAverageScore = "average_session_score"
)

// DashboardStoreConfig configures a DashboardStore.
type DashboardStoreConfig struct {
	Querier backend.RowQuerier
	Caller  backend.ProcedureCaller
	Viewer  Viewer
	Logger  *logger.Logger

	// Clock overrides time.Now for the week and month boundaries. Tests only.
	Clock func() time.Time
}

// DashboardStore serves the admin overview. The five aggregates are cheap
// and the page is visited rarely, so nothing is cached: every view is
// assembled fresh from five concurrent queries, and a widget whose query
// failed is reported by name while the rest render.
type DashboardStore struct {
	loadingFlag

	querier backend.RowQuerier
	caller  backend.ProcedureCaller
	viewer  Viewer
	logger  *logger.Logger
	now     func() time.Time
}

var _ Store = (*DashboardStore)(nil)

// NewDashboardStore creates a DashboardStore.
func NewDashboardStore(cfg DashboardStoreConfig) *DashboardStore {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &DashboardStore{
		querier: cfg.Querier,
		caller:  cfg.Caller,
		viewer:  cfg.Viewer,
		logger:  cfg.Logger.Named("dashboard"),
		now:     cfg.Clock,
	}
}

func (s *DashboardStore) Name() string { return "dashboard" }

// Reset is a no-op: the overview holds no state between reads.
func (s *DashboardStore) Reset() {}

// Overview assembles the admin dashboard. The role check runs before any
// query is issued. Widget queries run concurrently and fail independently;
// the returned stats carry whatever loaded, with the failures listed by
// widget name.
func (s *DashboardStore) Overview(ctx context.Context) (domain.DashboardStats, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	if !sess.UserType.IsAdmin() {
		return domain.DashboardStats{}, domain.ErrNotAdmin
	}

	s.begin()
	defer s.end()

	now := s.now()

	var (
		totalStudents    int
		totalErr         error
		activeToday      int
		activeErr        error
		sessionsThisWeek int
		sessionsErr      error
		averageScore     float64
		averageErr       error
		newThisMonth     int
		newErr           error
	)

	// Every goroutine returns nil: a failed widget must not cancel the
	// others through the group context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := backend.NewQuery(profileTable).Eq("user_type", string(domain.UserTypeStudent))
		totalStudents, totalErr = s.querier.Count(gctx, q)
		return nil
	})
	g.Go(func() error {
		activeErr = s.caller.Call(gctx, procActiveToday, map[string]any{}, &activeToday)
		return nil
	})
	g.Go(func() error {
		q := backend.NewQuery(sessionTable).Gte("created_at", timeutil.StartOfWeek(now))
		sessionsThisWeek, sessionsErr = s.querier.Count(gctx, q)
		return nil
	})
	g.Go(func() error {
		averageErr = s.caller.Call(gctx, procAverageScore, map[string]any{}, &averageScore)
		return nil
	})
	g.Go(func() error {
		q := backend.NewQuery(profileTable).
			Eq("user_type", string(domain.UserTypeStudent)).
			Gte("created_at", timeutil.StartOfMonth(now))
		newThisMonth, newErr = s.querier.Count(gctx, q)
		return nil
	})
	_ = g.Wait()

	var stats domain.DashboardStats
	apply := func(widget string, err error, set func()) {
		if err != nil {
			stats.FailedWidgets = append(stats.FailedWidgets, widget)
			s.logger.Warn("dashboard widget failed", "widget", widget, "error", err)
			return
		}
		set()
	}
	apply("total_students", totalErr, func() { stats.TotalStudents = &totalStudents })
	apply("active_today", activeErr, func() { stats.ActiveToday = &activeToday })
	apply("sessions_this_week", sessionsErr, func() { stats.SessionsThisWeek = &sessionsThisWeek })
	apply("average_score", averageErr, func() { stats.AverageScore = &averageScore })
	apply("new_this_month", newErr, func() { stats.NewThisMonth = &newThisMonth })

	return stats, nil
}
