package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opshub.dev/opshub/internal/config"
)

func TestAddTask_Validation(t *testing.T) {
	s := New(nil)

	err := s.AddTask(&Task{Name: "no id", Schedule: Every(time.Minute), Func: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)

	err = s.AddTask(&Task{ID: "a", Func: func(ctx context.Context) error { return nil }})
	assert.Error(t, err, "missing schedule")

	err = s.AddTask(&Task{ID: "a", Schedule: Every(time.Minute)})
	assert.Error(t, err, "missing func")

	task := &Task{ID: "a", Schedule: Every(time.Minute), Func: func(ctx context.Context) error { return nil }, Enabled: true}
	require.NoError(t, s.AddTask(task))
	assert.Error(t, s.AddTask(task), "duplicate id")
}

func TestRunTask_UpdatesStatus(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64

	require.NoError(t, s.AddTask(&Task{
		ID:       "count",
		Name:     "Counter",
		Schedule: Every(time.Hour),
		Enabled:  true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.RunTask("count"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	status, ok := s.TaskStatusByID("count")
	require.True(t, ok)
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, int64(0), status.ErrorCount)
	assert.False(t, status.LastRun.IsZero())

	assert.Error(t, s.RunTask("nope"))
}

func TestRunTask_RecordsErrors(t *testing.T) {
	s := New(nil)
	hookErrs := make(chan error, 1)
	s.OnRun(func(taskID string, duration time.Duration, err error) {
		hookErrs <- err
	})

	require.NoError(t, s.AddTask(&Task{
		ID:       "boom",
		Schedule: Every(time.Hour),
		Enabled:  true,
		Func:     func(ctx context.Context) error { return errors.New("disk full") },
	}))

	require.NoError(t, s.RunTask("boom"))
	select {
	case err := <-hookErrs:
		assert.EqualError(t, err, "disk full")
	case <-time.After(time.Second):
		t.Fatal("hook never fired")
	}

	status, _ := s.TaskStatusByID("boom")
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Equal(t, "disk full", status.LastError)
}

func TestEnableTask(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddTask(&Task{
		ID:       "toggle",
		Schedule: Every(time.Minute),
		Enabled:  true,
		Func:     func(ctx context.Context) error { return nil },
	}))

	require.NoError(t, s.EnableTask("toggle", false))
	status, _ := s.TaskStatusByID("toggle")
	assert.False(t, status.Enabled)
	assert.True(t, status.NextRun.IsZero())

	require.NoError(t, s.EnableTask("toggle", true))
	status, _ = s.TaskStatusByID("toggle")
	assert.False(t, status.NextRun.IsZero())

	assert.Error(t, s.EnableTask("ghost", true))
}

func TestStartStop_RunOnStart(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64

	require.NoError(t, s.AddTask(&Task{
		ID:         "startup",
		Schedule:   Every(time.Hour),
		Enabled:    true,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start()
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestRemoveTask(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddTask(&Task{
		ID:       "gone",
		Schedule: Every(time.Minute),
		Func:     func(ctx context.Context) error { return nil },
	}))
	require.NoError(t, s.RemoveTask("gone"))
	assert.Error(t, s.RemoveTask("gone"))
	assert.Empty(t, s.Status())
}

func TestRegisterAll(t *testing.T) {
	cfg := &config.Config{
		Backups: []config.Backup{
			{Name: "etc", Sources: []string{"/etc"}, Dest: "/var/backups", Schedule: "0 2 * * *"},
			{Name: "manual", Sources: []string{"/srv"}, Dest: "/var/backups"},
		},
		Rotations: []config.Rotation{
			{Name: "app", Glob: "/var/log/app/*.log", Schedule: "@daily"},
		},
		Feeds: []config.Feed{{Name: "drop", URL: "https://example.com/drop.txt"}},
	}

	registry := &TaskRegistry{
		RunBackup:    func(ctx context.Context, job config.Backup) error { return nil },
		RunRotation:  func(ctx context.Context, rot config.Rotation) error { return nil },
		RefreshFeeds: func(ctx context.Context) error { return nil },
		PruneHistory: func(ctx context.Context) error { return nil },
	}

	s := New(nil)
	require.NoError(t, RegisterAll(s, cfg, registry))

	ids := make(map[string]bool)
	for _, st := range s.Status() {
		ids[st.ID] = true
	}
	assert.True(t, ids["backup-etc"])
	assert.False(t, ids["backup-manual"], "unscheduled jobs are not registered")
	assert.True(t, ids["rotate-app"])
	assert.True(t, ids["feed-refresh"])
	assert.True(t, ids["history-prune"])
}

func TestRegisterAll_BadSchedule(t *testing.T) {
	cfg := &config.Config{
		Backups: []config.Backup{
			{Name: "bad", Sources: []string{"/etc"}, Dest: "/tmp", Schedule: "not a cron"},
		},
	}
	s := New(nil)
	assert.Error(t, RegisterAll(s, cfg, &TaskRegistry{}))
}
