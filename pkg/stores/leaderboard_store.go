package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/ranking"
)

const (
	defaultLeaderboardTTL = 5 * time.Minute

	// defaultTopN is the requested standings size. The actual window can be
	// larger when a tied group straddles the boundary.
	defaultTopN = 50

	leaderboardAvatarSize = 64

	weeklyView  = "leaderboard_weekly"
	allTimeView = "leaderboard_all_time"
)

type leaderboardRow struct {
	StudentID    string `json:"student_id"`
	DisplayName  string `json:"display_name"`
	GradeLevelID string `json:"grade_level_id"`
	AvatarPath   string `json:"avatar_path"`
	Score        int    `json:"score"`
}

// boardPage is the cached raw material for one timeframe: the fetched window
// in backend sort order, the true population size, and the viewer's own row
// when it fell outside the window. Entries are cached unranked; ranks are
// assigned fresh on every read because grade filtering changes the
// population a rank is relative to.
type boardPage struct {
	Entries  []leaderboardRow
	Total    int
	Self     *leaderboardRow
	SelfRank int
}

// LeaderboardStoreConfig configures a LeaderboardStore.
type LeaderboardStoreConfig struct {
	Querier backend.RowQuerier
	Storage backend.ObjectStorage
	Viewer  Viewer

	// TopN is the requested standings size. Defaults to 50.
	TopN int

	TTL    time.Duration
	Logger *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// LeaderboardStore owns the weekly and all-time standings. Each timeframe
// caches one raw window plus the viewer's own row; competition ranks are
// derived at read time.
type LeaderboardStore struct {
	loadingFlag

	querier backend.RowQuerier
	storage backend.ObjectStorage
	viewer  Viewer
	topN    int
	ttl     time.Duration
	logger  *logger.Logger

	pages *cache.Keyed[domain.Timeframe, boardPage]
}

var _ Store = (*LeaderboardStore)(nil)

// NewLeaderboardStore creates a LeaderboardStore.
func NewLeaderboardStore(cfg LeaderboardStoreConfig) *LeaderboardStore {
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLeaderboardTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &LeaderboardStore{
		querier: cfg.Querier,
		storage: cfg.Storage,
		viewer:  cfg.Viewer,
		topN:    cfg.TopN,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.Named("leaderboard"),
		pages:   cache.NewKeyedWithClock[domain.Timeframe, boardPage](cfg.Clock),
	}
}

func (s *LeaderboardStore) Name() string { return "leaderboard" }

// Reset drops both timeframe windows.
func (s *LeaderboardStore) Reset() { s.pages.Reset() }

// Refresh forces the next read of the timeframe to refetch.
func (s *LeaderboardStore) Refresh(tf domain.Timeframe) { s.pages.ResetKey(tf) }

// Standings returns the ranked top entries for a timeframe. Ties crossing
// the requested boundary are included whole, so the result may hold more
// than TopN entries. When the viewer's row is not inside the returned cut,
// it is attached as Self with its population-wide rank.
func (s *LeaderboardStore) Standings(ctx context.Context, tf domain.Timeframe) (domain.Standings, error) {
	if !tf.IsValid() {
		return domain.Standings{}, domain.NewDomainError("leaderboard", "Standings", domain.ErrInvalidInput, "unknown leaderboard timeframe")
	}
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.Standings{}, err
	}

	page, err := s.page(ctx, tf, sess.UserID)
	if err != nil {
		return domain.Standings{}, err
	}

	entries := s.rankedEntries(page.Entries)
	cut := ranking.TopWithTies(entries, s.topN)

	standings := domain.Standings{
		Timeframe: tf,
		Entries:   cut,
		Total:     page.Total,
	}
	if self := findStudent(cut, sess.UserID); self == nil {
		if inWindow := findStudent(entries, sess.UserID); inWindow != nil {
			standings.Self = inWindow
		} else if page.Self != nil {
			self := s.toRanked(*page.Self)
			self.Rank = page.SelfRank
			standings.Self = self
		}
	}
	return standings, nil
}

// StandingsByGrade re-ranks the cached window over a single grade level.
// Ranks and the tie-aware cut are recomputed from scratch on the filtered
// population. Total counts the grade's entries inside the fetched window;
// the viewer is attached as Self only when their row is in that window,
// since a grade-relative rank cannot be derived for rows below it.
func (s *LeaderboardStore) StandingsByGrade(ctx context.Context, tf domain.Timeframe, gradeLevelID string) (domain.Standings, error) {
	if !tf.IsValid() {
		return domain.Standings{}, domain.NewDomainError("leaderboard", "StandingsByGrade", domain.ErrInvalidInput, "unknown leaderboard timeframe")
	}
	if gradeLevelID == "" {
		return domain.Standings{}, domain.NewDomainError("leaderboard", "StandingsByGrade", domain.ErrEmptyValue, "grade level id is required")
	}
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.Standings{}, err
	}

	page, err := s.page(ctx, tf, sess.UserID)
	if err != nil {
		return domain.Standings{}, err
	}

	filtered := make([]leaderboardRow, 0, len(page.Entries))
	for _, row := range page.Entries {
		if row.GradeLevelID == gradeLevelID {
			filtered = append(filtered, row)
		}
	}

	entries := s.rankedEntries(filtered)
	cut := ranking.TopWithTies(entries, s.topN)

	standings := domain.Standings{
		Timeframe: tf,
		Entries:   cut,
		Total:     len(entries),
	}
	if findStudent(cut, sess.UserID) == nil {
		standings.Self = findStudent(entries, sess.UserID)
	}
	return standings, nil
}

// page returns the cached window for a timeframe, fetching when stale.
func (s *LeaderboardStore) page(ctx context.Context, tf domain.Timeframe, selfID string) (boardPage, error) {
	s.begin()
	defer s.end()

	return s.pages.Fetch(ctx, tf, cache.FetchOptions{TTL: s.ttl}, func(ctx context.Context) (boardPage, error) {
		return s.fetchPage(ctx, tf, selfID)
	})
}

// fetchPage loads one timeframe's window. The population is counted first so
// a tie straddling the window boundary can be detected and the window
// extended to include the whole tied group.
func (s *LeaderboardStore) fetchPage(ctx context.Context, tf domain.Timeframe, selfID string) (boardPage, error) {
	view := viewFor(tf)

	total, err := s.querier.Count(ctx, backend.NewQuery(view))
	if err != nil {
		return boardPage{}, wrapBackend("leaderboard", "Standings", "could not load the leaderboard", err)
	}
	if total == 0 {
		return boardPage{Total: 0}, nil
	}

	rows, err := s.fetchWindow(ctx, view, s.topN)
	if err != nil {
		return boardPage{}, err
	}

	if len(rows) == s.topN && total > s.topN {
		boundary := rows[len(rows)-1].Score
		tied, err := s.querier.Count(ctx, backend.NewQuery(view).Gte("score", boundary))
		if err != nil {
			return boardPage{}, wrapBackend("leaderboard", "Standings", "could not load the leaderboard", err)
		}
		if tied > len(rows) {
			s.logger.Debug("extending window past tied boundary", "timeframe", tf, "boundary_score", boundary, "window", tied)
			rows, err = s.fetchWindow(ctx, view, tied)
			if err != nil {
				return boardPage{}, err
			}
		}
	}

	page := boardPage{Entries: rows, Total: total}

	if selfID != "" && findRow(rows, selfID) == nil {
		self, rank, err := s.fetchSelf(ctx, view, selfID)
		if err != nil {
			return boardPage{}, err
		}
		page.Self = self
		page.SelfRank = rank
	}
	return page, nil
}

func (s *LeaderboardStore) fetchWindow(ctx context.Context, view string, limit int) ([]leaderboardRow, error) {
	var rows []leaderboardRow
	q := backend.NewQuery(view).
		OrderDesc("score").
		OrderAsc("student_id").
		Limit(limit)
	if err := s.querier.Select(ctx, q, &rows); err != nil {
		return nil, wrapBackend("leaderboard", "Standings", "could not load the leaderboard", err)
	}
	return rows, nil
}

// fetchSelf loads the viewer's own row and computes its population-wide
// competition rank: one plus the number of strictly higher scores. A viewer
// with no row (no sessions in the window yet) is not an error.
func (s *LeaderboardStore) fetchSelf(ctx context.Context, view, selfID string) (*leaderboardRow, int, error) {
	var rows []leaderboardRow
	q := backend.NewQuery(view).Eq("student_id", selfID).Limit(1)
	if err := s.querier.Select(ctx, q, &rows); err != nil {
		return nil, 0, wrapBackend("leaderboard", "Standings", "could not load your standing", err)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	above, err := s.querier.Count(ctx, backend.NewQuery(view).Gt("score", rows[0].Score))
	if err != nil {
		return nil, 0, wrapBackend("leaderboard", "Standings", "could not load your standing", err)
	}
	return &rows[0], above + 1, nil
}

// rankedEntries copies raw rows into fresh view models and assigns
// competition ranks, tie-breaking equal scores by display name then id for
// stable presentation.
func (s *LeaderboardStore) rankedEntries(rows []leaderboardRow) []*domain.RankedStudent {
	entries := make([]*domain.RankedStudent, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.toRanked(row))
	}
	ranking.Rank(entries, func(a, b *domain.RankedStudent) bool {
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.StudentID < b.StudentID
	})
	return entries
}

func (s *LeaderboardStore) toRanked(row leaderboardRow) *domain.RankedStudent {
	entry := &domain.RankedStudent{
		StudentID:    row.StudentID,
		DisplayName:  row.DisplayName,
		GradeLevelID: row.GradeLevelID,
		Score:        row.Score,
	}
	if row.AvatarPath != "" {
		entry.AvatarURL = s.storage.PublicURL(avatarBucket, row.AvatarPath, &backend.ImageTransform{
			Width:   leaderboardAvatarSize,
			Height:  leaderboardAvatarSize,
			Quality: 80,
			Resize:  "cover",
		}, 0)
	}
	return entry
}

func viewFor(tf domain.Timeframe) string {
	if tf == domain.TimeframeWeekly {
		return weeklyView
	}
	return allTimeView
}

func findStudent(entries []*domain.RankedStudent, studentID string) *domain.RankedStudent {
	for _, e := range entries {
		if e.StudentID == studentID {
			return e
		}
	}
	return nil
}

func findRow(rows []leaderboardRow, studentID string) *leaderboardRow {
	for i := range rows {
		if rows[i].StudentID == studentID {
			return &rows[i]
		}
	}
	return nil
}
