package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

// defaultDailyStatusTTL is deliberately short: the status flips as the
// student acts elsewhere in the app (practicing, feeding a pet), and other
// devices may complete activities too.
const defaultDailyStatusTTL = 30 * time.Second

const (
	procDailyStatus      = "daily_status"
	procCompleteActivity = "complete_daily_activity"
)

type dailyStatusPayload struct {
	Date       string   `json:"date"`
	Completed  []string `json:"completed"`
	StreakDays int      `json:"streak_days"`
}

type completeActivityPayload struct {
	StreakDays int `json:"streak_days"`
}

// DailyStatusStoreConfig configures a DailyStatusStore.
type DailyStatusStoreConfig struct {
	Caller backend.ProcedureCaller
	Viewer Viewer
	TTL    time.Duration
	Logger *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// DailyStatusStore owns today's activity checklist and streak. The day
// boundary, the checklist rules, and streak arithmetic are all server-side;
// the store caches the answer briefly and patches it after completions.
type DailyStatusStore struct {
	loadingFlag

	caller backend.ProcedureCaller
	viewer Viewer
	ttl    time.Duration
	logger *logger.Logger

	status *cache.Value[domain.DailyStatus]
}

var _ Store = (*DailyStatusStore)(nil)

// NewDailyStatusStore creates a DailyStatusStore.
func NewDailyStatusStore(cfg DailyStatusStoreConfig) *DailyStatusStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultDailyStatusTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &DailyStatusStore{
		caller: cfg.Caller,
		viewer: cfg.Viewer,
		ttl:    cfg.TTL,
		logger: cfg.Logger.Named("dailystatus"),
		status: cache.NewWithClock[domain.DailyStatus](cfg.Clock),
	}
}

func (s *DailyStatusStore) Name() string { return "dailystatus" }

// Reset drops the cached status.
func (s *DailyStatusStore) Reset() { s.status.Reset() }

// Today returns the signed-in student's checklist for the current day.
func (s *DailyStatusStore) Today(ctx context.Context) (domain.DailyStatus, error) {
	return s.fetchToday(ctx, false)
}

func (s *DailyStatusStore) fetchToday(ctx context.Context, force bool) (domain.DailyStatus, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.DailyStatus{}, err
	}

	s.begin()
	defer s.end()

	return s.status.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: force}, func(ctx context.Context) (domain.DailyStatus, error) {
		var payload dailyStatusPayload
		args := map[string]any{"student_id": sess.UserID}
		if err := s.caller.Call(ctx, procDailyStatus, args, &payload); err != nil {
			return domain.DailyStatus{}, wrapBackend("dailystatus", "Today", "could not load today's progress", err)
		}

		completed := make([]domain.ActivityKind, 0, len(payload.Completed))
		for _, c := range payload.Completed {
			completed = append(completed, domain.ActivityKind(c))
		}
		return domain.DailyStatus{
			Date:       payload.Date,
			Completed:  completed,
			StreakDays: payload.StreakDays,
		}, nil
	})
}

// CompleteActivity records one finished daily activity and patches the
// cached checklist with the streak the backend reports. Completing the same
// activity twice in a day is accepted and changes nothing.
func (s *DailyStatusStore) CompleteActivity(ctx context.Context, kind domain.ActivityKind) error {
	if !kind.IsValid() {
		return domain.NewDomainError("dailystatus", "CompleteActivity", domain.ErrInvalidInput, "unknown daily activity")
	}
	sess, err := currentSession(s.viewer)
	if err != nil {
		return err
	}

	s.begin()
	var payload completeActivityPayload
	args := map[string]any{"student_id": sess.UserID, "activity": string(kind)}
	err = s.caller.Call(ctx, procCompleteActivity, args, &payload)
	s.end()
	if err != nil {
		return wrapBackend("dailystatus", "CompleteActivity", "could not record the activity", err)
	}

	patched := s.status.Mutate(func(st *domain.DailyStatus) {
		st.MarkCompleted(kind)
		st.StreakDays = payload.StreakDays
	})
	err = patchOrRefetch(ctx, patched, func(ctx context.Context) error {
		_, err := s.fetchToday(ctx, true)
		return err
	})
	if err != nil {
		s.logger.Warn("status refetch after completion failed", "error", err)
	}
	return nil
}
