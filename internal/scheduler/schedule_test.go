package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	// Wednesday 2026-08-19
	return time.Date(2026, 8, 19, hour, min, 0, 0, time.UTC)
}

func TestIntervalSchedule(t *testing.T) {
	s := Every(15 * time.Minute)
	next := s.Next(at(10, 0))
	assert.Equal(t, at(10, 15), next)
}

func TestDailySchedule(t *testing.T) {
	s := Daily(2, 30)

	// Before today's slot.
	assert.Equal(t, time.Date(2026, 8, 19, 2, 30, 0, 0, time.UTC), s.Next(at(1, 0)))
	// After today's slot rolls to tomorrow.
	assert.Equal(t, time.Date(2026, 8, 20, 2, 30, 0, 0, time.UTC), s.Next(at(3, 0)))
}

func TestWeeklySchedule(t *testing.T) {
	s := Weekly([]time.Weekday{time.Sunday}, 4, 0)
	next := s.Next(at(10, 0))
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Equal(t, time.Date(2026, 8, 23, 4, 0, 0, 0, time.UTC), next)

	empty := Weekly(nil, 4, 0)
	assert.True(t, empty.Next(at(10, 0)).IsZero())
}

func TestCron_Hourly(t *testing.T) {
	s := MustCron("0 * * * *")
	assert.Equal(t, at(11, 0), s.Next(at(10, 20)))
}

func TestCron_EveryFifteen(t *testing.T) {
	s := MustCron("*/15 * * * *")
	assert.Equal(t, at(10, 15), s.Next(at(10, 1)))
	assert.Equal(t, at(10, 30), s.Next(at(10, 15)))
}

func TestCron_DailyAtTwo(t *testing.T) {
	s := MustCron("0 2 * * *")
	assert.Equal(t, time.Date(2026, 8, 20, 2, 0, 0, 0, time.UTC), s.Next(at(10, 0)))
}

func TestCron_WeekdayRestriction(t *testing.T) {
	// Sundays at midnight.
	s := MustCron("0 0 * * 0")
	next := s.Next(at(10, 0))
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Equal(t, 0, next.Hour())
}

func TestCron_RangeAndList(t *testing.T) {
	s, err := Cron("0 9-17 * * 1,2,3,4,5")
	require.NoError(t, err)

	// Wednesday 18:00 -> Thursday 09:00.
	next := s.Next(at(18, 0))
	assert.Equal(t, time.Thursday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
}

func TestCron_Invalid(t *testing.T) {
	for _, expr := range []string{
		"* * * *",     // four fields
		"61 * * * *",  // minute out of range
		"* 25 * * *",  // hour out of range
		"* * * * 7",   // weekday out of range
		"*/0 * * * *", // zero step
		"5-2 * * * *", // inverted range
		"a * * * *",   // not a number
	} {
		_, err := Cron(expr)
		assert.Error(t, err, expr)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("@daily")
	require.NoError(t, err)
	assert.IsType(t, &CronSchedule{}, s)

	s, err = Parse("every 10m")
	require.NoError(t, err)
	assert.Equal(t, Every(10*time.Minute), s)

	s, err = Parse("30 4 * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 20, 4, 30, 0, 0, time.UTC), s.Next(at(10, 0)))

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("every 5s")
	assert.Error(t, err, "sub-minute intervals rejected")
	_, err = Parse("every banana")
	assert.Error(t, err)
}
