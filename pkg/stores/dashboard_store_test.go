package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/backend/backendtest"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

func newDashboardStore(fake *backendtest.Fake, clock *fakeClock, viewer Viewer) *DashboardStore {
	return NewDashboardStore(DashboardStoreConfig{
		Querier: fake,
		Caller:  fake,
		Viewer:  viewer,
		Clock:   clock.Now,
	})
}

func adminViewer() *fakeViewer { return viewerOf("admin-1", domain.UserTypeAdmin) }

func countsFor(fake *backendtest.Fake, table string) []backend.Query {
	var out []backend.Query
	for _, q := range fake.Counts() {
		if q.Table == table {
			out = append(out, q)
		}
	}
	return out
}

func TestOverviewIsAdminOnly(t *testing.T) {
	fake := backendtest.New()

	for _, viewer := range []*fakeViewer{studentViewer("stu-1"), viewerOf("parent-1", domain.UserTypeParent)} {
		store := newDashboardStore(fake, newFakeClock(), viewer)
		_, err := store.Overview(context.Background())
		assert.ErrorIs(t, err, domain.ErrNotAdmin)
	}

	assert.Empty(t, fake.Counts(), "the role check must run before any query")
	assert.Empty(t, fake.Calls())
}

func TestOverviewRequiresSession(t *testing.T) {
	store := newDashboardStore(backendtest.New(), newFakeClock(), signedOutViewer())

	_, err := store.Overview(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
}

func TestOverviewAssemblesAllWidgets(t *testing.T) {
	fake := backendtest.New()
	// The two profile counts run concurrently and drain the same queue, so
	// both outcomes carry the same value.
	fake.QueueCount(profileTable, 1200)
	fake.QueueCount(profileTable, 1200)
	fake.QueueCount(sessionTable, 342)
	fake.QueueResult(procActiveToday, `97`)
	fake.QueueResult(procAverageScore, `78.5`)
	store := newDashboardStore(fake, newFakeClock(), adminViewer())

	stats, err := store.Overview(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.Complete())
	require.NotNil(t, stats.TotalStudents)
	assert.Equal(t, 1200, *stats.TotalStudents)
	require.NotNil(t, stats.ActiveToday)
	assert.Equal(t, 97, *stats.ActiveToday)
	require.NotNil(t, stats.SessionsThisWeek)
	assert.Equal(t, 342, *stats.SessionsThisWeek)
	require.NotNil(t, stats.AverageScore)
	assert.Equal(t, 78.5, *stats.AverageScore)
	require.NotNil(t, stats.NewThisMonth)
	assert.Equal(t, 1200, *stats.NewThisMonth)

	// One profile count covers all students, the other narrows to accounts
	// created since the month began. March 10, 2026 is a Tuesday, so the
	// week starts on the 9th.
	profileCounts := countsFor(fake, profileTable)
	require.Len(t, profileCounts, 2)
	filterCounts := map[int]bool{}
	for _, q := range profileCounts {
		filterCounts[len(q.Filters)] = true
		assert.Equal(t, backend.Filter{Column: "user_type", Op: backend.OpEq, Value: "student"}, q.Filters[0])
		if len(q.Filters) == 2 {
			assert.Equal(t, backend.Filter{
				Column: "created_at",
				Op:     backend.OpGte,
				Value:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			}, q.Filters[1])
		}
	}
	assert.True(t, filterCounts[1] && filterCounts[2])

	sessionCounts := countsFor(fake, sessionTable)
	require.Len(t, sessionCounts, 1)
	assert.Equal(t, []backend.Filter{{
		Column: "created_at",
		Op:     backend.OpGte,
		Value:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}}, sessionCounts[0].Filters)
}

func TestOverviewReportsFailedWidgetsByName(t *testing.T) {
	fake := backendtest.New()
	fake.QueueCountError(sessionTable, errors.New("view is rebuilding"))
	fake.QueueCallError(procAverageScore, errors.New("procedure timeout"))
	store := newDashboardStore(fake, newFakeClock(), adminViewer())

	stats, err := store.Overview(context.Background())
	require.NoError(t, err, "partial failure is a degraded dashboard, not an error")

	assert.Equal(t, []string{"sessions_this_week", "average_score"}, stats.FailedWidgets)
	assert.False(t, stats.Complete())
	assert.Nil(t, stats.SessionsThisWeek)
	assert.Nil(t, stats.AverageScore)

	// The surviving widgets still render.
	assert.NotNil(t, stats.TotalStudents)
	assert.NotNil(t, stats.ActiveToday)
	assert.NotNil(t, stats.NewThisMonth)
}
