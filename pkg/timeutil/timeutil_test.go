package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfWeek_MondayBased(t *testing.T) {
	// Wednesday 2026-08-19 15:30 UTC
	wed := time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC)
	start := StartOfWeek(wed)

	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)

	// Sunday belongs to the week that started the previous Monday.
	sun := time.Date(2026, 8, 23, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, start, StartOfWeek(sun))

	end := EndOfWeek(wed)
	assert.Equal(t, time.Sunday, end.Weekday())
	assert.True(t, end.After(wed))
}

func TestStartOfWeek_OnMonday(t *testing.T) {
	mon := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, mon, StartOfWeek(mon))
}

func TestMonthBoundaries(t *testing.T) {
	mid := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(mid))
	assert.Equal(t, 28, EndOfMonth(mid).Day())

	leap := time.Date(2028, 2, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 29, EndOfMonth(leap).Day())
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-08", MonthKey(time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)))

	// A timestamp late in the local day can belong to the next UTC month.
	loc := time.FixedZone("UTC-6", -6*60*60)
	lateLocal := time.Date(2026, 8, 31, 20, 0, 0, 0, loc)
	assert.Equal(t, "2026-09", MonthKey(lateLocal))
}

func TestMonthKeysBack(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	keys := MonthKeysBack(now, 6)
	assert.Equal(t, []string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"}, keys)

	assert.Equal(t, []string{"2026-03"}, MonthKeysBack(now, 1))
	assert.Empty(t, MonthKeysBack(now, 0))
	assert.Empty(t, MonthKeysBack(now, -3))
}

func TestParseMonthKey_RoundTrip(t *testing.T) {
	parsed, err := ParseMonthKey("2026-08")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseMonthKey("not-a-month")
	assert.Error(t, err)
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 8, 25, 0, 1, 0, 0, time.UTC)
	b := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	c := time.Date(2026, 8, 26, 0, 0, 1, 0, time.UTC)

	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(b, c))
	assert.True(t, IsConsecutiveDay(b, c))
	assert.False(t, IsConsecutiveDay(a, b))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 8, 20, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 5, DaysBetween(a, b))
	assert.Equal(t, 5, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}
