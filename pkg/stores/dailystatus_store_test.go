package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypet-hub/studypet-hub/pkg/backend/backendtest"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
)

const dailyStatusJSON = `{"date": "2026-03-10", "completed": ["practice"], "streak_days": 4}`

func newDailyStatusStore(fake *backendtest.Fake, clock *fakeClock, viewer Viewer) *DailyStatusStore {
	return NewDailyStatusStore(DailyStatusStoreConfig{
		Caller: fake,
		Viewer: viewer,
		Clock:  clock.Now,
	})
}

func TestTodayFetchesAndCaches(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procDailyStatus, dailyStatusJSON)
	clock := newFakeClock()
	store := newDailyStatusStore(fake, clock, studentViewer("stu-1"))

	status, err := store.Today(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", status.Date)
	assert.Equal(t, []domain.ActivityKind{domain.ActivityPractice}, status.Completed)
	assert.Equal(t, 4, status.StreakDays)
	assert.True(t, status.HasCompleted(domain.ActivityPractice))
	assert.False(t, status.HasCompleted(domain.ActivityFeedPet))
	assert.Equal(t, map[string]any{"student_id": "stu-1"}, fake.Calls()[0].Args)

	_, err = store.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.CallCount(procDailyStatus), "a fresh status must be served from cache")

	// The status goes stale fast: the student may be completing activities
	// on another device.
	clock.Advance(defaultDailyStatusTTL)
	fake.QueueResult(procDailyStatus, dailyStatusJSON)
	_, err = store.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.CallCount(procDailyStatus))
}

func TestTodayRequiresSession(t *testing.T) {
	fake := backendtest.New()
	store := newDailyStatusStore(fake, newFakeClock(), signedOutViewer())

	_, err := store.Today(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
	assert.Empty(t, fake.Calls())
}

func TestCompleteActivityRejectsUnknownKinds(t *testing.T) {
	fake := backendtest.New()
	store := newDailyStatusStore(fake, newFakeClock(), studentViewer("stu-1"))

	err := store.CompleteActivity(context.Background(), domain.ActivityKind("brush_teeth"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, fake.Calls())
}

func TestCompleteActivityPatchesTheChecklist(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procDailyStatus, dailyStatusJSON)
	store := newDailyStatusStore(fake, newFakeClock(), studentViewer("stu-1"))

	_, err := store.Today(context.Background())
	require.NoError(t, err)

	fake.QueueResult(procCompleteActivity, `{"streak_days": 5}`)
	require.NoError(t, store.CompleteActivity(context.Background(), domain.ActivityFeedPet))

	assert.Equal(t, map[string]any{"student_id": "stu-1", "activity": "feed_pet"}, fake.Calls()[1].Args)

	status, err := store.Today(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HasCompleted(domain.ActivityFeedPet))
	assert.True(t, status.HasCompleted(domain.ActivityPractice), "earlier completions survive the patch")
	assert.Equal(t, 5, status.StreakDays, "the streak comes from the backend, not local arithmetic")
	assert.Equal(t, 1, fake.CallCount(procDailyStatus), "a successful patch must not refetch")
}

func TestCompleteActivityTwiceIsHarmless(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procDailyStatus, dailyStatusJSON)
	store := newDailyStatusStore(fake, newFakeClock(), studentViewer("stu-1"))

	_, err := store.Today(context.Background())
	require.NoError(t, err)

	fake.QueueResult(procCompleteActivity, `{"streak_days": 4}`)
	require.NoError(t, store.CompleteActivity(context.Background(), domain.ActivityPractice))

	status, err := store.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ActivityKind{domain.ActivityPractice}, status.Completed, "repeating an activity must not duplicate it")
}

func TestCompleteActivityWithColdStatusRefetches(t *testing.T) {
	fake := backendtest.New()
	store := newDailyStatusStore(fake, newFakeClock(), studentViewer("stu-1"))

	fake.QueueResult(procCompleteActivity, `{"streak_days": 1}`)
	fake.QueueResult(procDailyStatus, dailyStatusJSON)

	require.NoError(t, store.CompleteActivity(context.Background(), domain.ActivityPractice))
	assert.Equal(t, 1, fake.CallCount(procDailyStatus), "a patch with nothing to patch must refetch instead")
}

func TestCompleteActivitySurfacesTheProcedureMessage(t *testing.T) {
	fake := backendtest.New()
	fake.QueueResult(procCompleteActivity, `{"success": false, "error": "the day has already rolled over"}`)
	store := newDailyStatusStore(fake, newFakeClock(), studentViewer("stu-1"))

	err := store.CompleteActivity(context.Background(), domain.ActivityPractice)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "the day has already rolled over", domain.ErrorMessage(err, "unused"))
}
