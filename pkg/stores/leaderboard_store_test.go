package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/backend/backendtest"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

const weeklyBoardJSON = `[
	{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "stu-1/a.png", "score": 500},
	{"student_id": "stu-2", "display_name": "Dias", "grade_level_id": "grade-6", "avatar_path": "", "score": 400},
	{"student_id": "stu-3", "display_name": "Erbol", "grade_level_id": "grade-5", "avatar_path": "", "score": 400}
]`

func newLeaderboardStore(fake *backendtest.Fake, clock *fakeClock, viewer Viewer, topN int) *LeaderboardStore {
	return NewLeaderboardStore(LeaderboardStoreConfig{
		Querier: fake,
		Storage: fake,
		Viewer:  viewer,
		TopN:    topN,
		Clock:   clock.Now,
	})
}

func rankedIDs(entries []*domain.RankedStudent) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.StudentID
	}
	return ids
}

func ranksOf(entries []*domain.RankedStudent) []int {
	ranks := make([]int, len(entries))
	for i, e := range entries {
		ranks[i] = e.Rank
	}
	return ranks
}

func TestStandingsRanksWithTies(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 3)
	fake.QueueRows(weeklyView, weeklyBoardJSON)
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-2"), 3)

	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)

	assert.Equal(t, 3, standings.Total)
	assert.Equal(t, []string{"stu-1", "stu-2", "stu-3"}, rankedIDs(standings.Entries))
	assert.Equal(t, []int{1, 2, 2}, ranksOf(standings.Entries), "equal scores share a rank")
	assert.Nil(t, standings.Self, "a viewer inside the cut needs no separate row")

	assert.Equal(t, "https://cdn.test/avatars/stu-1/a.png?width=64&height=64", standings.Entries[0].AvatarURL)
	assert.Empty(t, standings.Entries[1].AvatarURL, "no avatar path means no URL")
}

func TestStandingsExtendsWindowAcrossTiedBoundary(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 10)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "", "score": 100},
		{"student_id": "stu-2", "display_name": "Bekzat", "grade_level_id": "grade-5", "avatar_path": "", "score": 90},
		{"student_id": "stu-3", "display_name": "Karina", "grade_level_id": "grade-6", "avatar_path": "", "score": 80}
	]`)
	fake.QueueCount(weeklyView, 5)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "", "score": 100},
		{"student_id": "stu-2", "display_name": "Bekzat", "grade_level_id": "grade-5", "avatar_path": "", "score": 90},
		{"student_id": "stu-3", "display_name": "Karina", "grade_level_id": "grade-6", "avatar_path": "", "score": 80},
		{"student_id": "stu-4", "display_name": "Lena", "grade_level_id": "grade-5", "avatar_path": "", "score": 80},
		{"student_id": "stu-5", "display_name": "Miras", "grade_level_id": "grade-6", "avatar_path": "", "score": 80}
	]`)
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-1"), 3)

	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)

	assert.Equal(t, 10, standings.Total)
	assert.Equal(t, []int{1, 2, 3, 3, 3}, ranksOf(standings.Entries), "the tied group at the boundary comes in whole")

	selects := fake.Selects()
	require.Len(t, selects, 2)
	assert.Equal(t, 3, selects[0].LimitN)
	assert.Equal(t, 5, selects[1].LimitN, "the refetch must cover the whole tied group")

	counts := fake.Counts()
	require.Len(t, counts, 2)
	assert.Equal(t, []backend.Filter{{Column: "score", Op: backend.OpGte, Value: 80}}, counts[1].Filters)
}

func TestStandingsAttachesSelfBelowTheWindow(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 3)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "", "score": 100},
		{"student_id": "stu-2", "display_name": "Bekzat", "grade_level_id": "grade-5", "avatar_path": "", "score": 90}
	]`)
	fake.QueueCount(weeklyView, 2)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-9", "display_name": "Zarina", "grade_level_id": "grade-5", "avatar_path": "", "score": 40}
	]`)
	fake.QueueCount(weeklyView, 2)
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-9"), 2)

	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, ranksOf(standings.Entries))
	require.NotNil(t, standings.Self)
	assert.Equal(t, "stu-9", standings.Self.StudentID)
	assert.Equal(t, 40, standings.Self.Score)
	assert.Equal(t, 3, standings.Self.Rank, "one plus the strictly higher scores")

	// The viewer's own row is looked up by id, not scanned for.
	selfQuery := fake.Selects()[1]
	assert.Equal(t, []backend.Filter{{Column: "student_id", Op: backend.OpEq, Value: "stu-9"}}, selfQuery.Filters)

	// By-grade standings are relative to the fetched window only, so a
	// below-window viewer has no derivable grade rank and Self stays unset.
	byGrade, err := store.StandingsByGrade(context.Background(), domain.TimeframeWeekly, "grade-5")
	require.NoError(t, err)
	assert.Equal(t, 2, byGrade.Total)
	assert.Nil(t, byGrade.Self)
}

func TestStandingsSelfWithoutARowYet(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 3)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "", "score": 100},
		{"student_id": "stu-2", "display_name": "Bekzat", "grade_level_id": "grade-5", "avatar_path": "", "score": 90}
	]`)
	fake.QueueCount(weeklyView, 2)
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-9"), 2)

	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)
	assert.Nil(t, standings.Self, "a student with no sessions in the window has no standing, which is not an error")
}

func TestStandingsByGradeReRanksWithoutMutatingTheCache(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 4)
	fake.QueueRows(weeklyView, `[
		{"student_id": "stu-1", "display_name": "Aliya", "grade_level_id": "grade-5", "avatar_path": "", "score": 100},
		{"student_id": "stu-2", "display_name": "Bekzat", "grade_level_id": "grade-6", "avatar_path": "", "score": 90},
		{"student_id": "stu-3", "display_name": "Karina", "grade_level_id": "grade-5", "avatar_path": "", "score": 80},
		{"student_id": "stu-4", "display_name": "Lena", "grade_level_id": "grade-5", "avatar_path": "", "score": 70}
	]`)
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-2"), 10)

	byGrade, err := store.StandingsByGrade(context.Background(), domain.TimeframeWeekly, "grade-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-3", "stu-4"}, rankedIDs(byGrade.Entries))
	assert.Equal(t, []int{1, 2, 3}, ranksOf(byGrade.Entries), "grade ranks close over the gaps the filter removed")
	assert.Equal(t, 3, byGrade.Total)

	// The whole-population read must see untouched ranks even though the
	// grade view already ranked a subset of the same cached window.
	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, ranksOf(standings.Entries))
	assert.Equal(t, 4, standings.Total)

	assert.Equal(t, 1, fake.SelectCount(weeklyView), "both views must share one cached window")
}

func TestStandingsByGradeRequiresAGrade(t *testing.T) {
	store := newLeaderboardStore(backendtest.New(), newFakeClock(), studentViewer("stu-1"), 3)

	_, err := store.StandingsByGrade(context.Background(), domain.TimeframeWeekly, "")
	assert.ErrorIs(t, err, domain.ErrEmptyValue)
}

func TestStandingsEmptyBoard(t *testing.T) {
	fake := backendtest.New()
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-1"), 3)

	standings, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)

	assert.Empty(t, standings.Entries)
	assert.Zero(t, standings.Total)
	assert.Nil(t, standings.Self)
	assert.Zero(t, fake.SelectCount(weeklyView), "an empty population needs no window fetch")
}

func TestStandingsTimeframesAreIndependent(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCount(weeklyView, 3)
	fake.QueueRows(weeklyView, weeklyBoardJSON)
	fake.QueueCount(allTimeView, 3)
	fake.QueueRows(allTimeView, weeklyBoardJSON)
	clock := newFakeClock()
	store := newLeaderboardStore(fake, clock, studentViewer("stu-2"), 3)

	_, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)
	_, err = store.Standings(context.Background(), domain.TimeframeAllTime)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.SelectCount(weeklyView))
	assert.Equal(t, 1, fake.SelectCount(allTimeView))

	_, err = store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.SelectCount(weeklyView), "a fresh window must be served from cache")

	store.Refresh(domain.TimeframeWeekly)
	fake.QueueCount(weeklyView, 3)
	fake.QueueRows(weeklyView, weeklyBoardJSON)
	_, err = store.Standings(context.Background(), domain.TimeframeWeekly)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.SelectCount(weeklyView), "refresh must force the next read to refetch")
	assert.Equal(t, 1, fake.SelectCount(allTimeView), "refreshing one timeframe must not touch the other")
}

func TestStandingsRejectsUnknownTimeframe(t *testing.T) {
	fake := backendtest.New()
	store := newLeaderboardStore(fake, newFakeClock(), studentViewer("stu-1"), 3)

	_, err := store.Standings(context.Background(), domain.Timeframe("monthly"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, fake.Selects())
}

func TestStandingsRequireSession(t *testing.T) {
	fake := backendtest.New()
	store := newLeaderboardStore(fake, newFakeClock(), signedOutViewer(), 3)

	_, err := store.Standings(context.Background(), domain.TimeframeWeekly)
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
	assert.Empty(t, fake.Counts())
}
