package scheduler

import (
	"context"
	"fmt"
	"time"

	"opshub.dev/opshub/internal/config"
)

// TaskRegistry holds the callbacks tasks delegate to. Serve mode
// wires these to the real runners so the scheduler stays decoupled
// from the job packages.
type TaskRegistry struct {
	RunBackup    func(ctx context.Context, job config.Backup) error
	RunRotation  func(ctx context.Context, rot config.Rotation) error
	RefreshFeeds func(ctx context.Context) error
	PruneHistory func(ctx context.Context) error
}

// NewBackupTask schedules one configured backup job.
func NewBackupTask(registry *TaskRegistry, job config.Backup) (*Task, error) {
	schedule, err := Parse(job.Schedule)
	if err != nil {
		return nil, fmt.Errorf("backup %q: %w", job.Name, err)
	}
	return &Task{
		ID:          "backup-" + job.Name,
		Name:        "Backup " + job.Name,
		Description: fmt.Sprintf("Archive %d source trees to %s", len(job.Sources), job.Dest),
		Schedule:    schedule,
		Enabled:     true,
		Timeout:     30 * time.Minute,
		Func: func(ctx context.Context) error {
			if registry.RunBackup == nil {
				return fmt.Errorf("backup runner not configured")
			}
			return registry.RunBackup(ctx, job)
		},
	}, nil
}

// NewRotationTask schedules one configured rotation policy.
func NewRotationTask(registry *TaskRegistry, rot config.Rotation) (*Task, error) {
	expr := rot.Schedule
	if expr == "" {
		expr = "@daily"
	}
	schedule, err := Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("rotation %q: %w", rot.Name, err)
	}
	return &Task{
		ID:          "rotate-" + rot.Name,
		Name:        "Rotate " + rot.Name,
		Description: "Rotate logs matching " + rot.Glob,
		Schedule:    schedule,
		Enabled:     true,
		Timeout:     10 * time.Minute,
		Func: func(ctx context.Context) error {
			if registry.RunRotation == nil {
				return fmt.Errorf("rotator not configured")
			}
			return registry.RunRotation(ctx, rot)
		},
	}, nil
}

// NewFeedRefreshTask keeps the firewall blocklist set current.
func NewFeedRefreshTask(registry *TaskRegistry, interval time.Duration) *Task {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Task{
		ID:          "feed-refresh",
		Name:        "Feed Refresh",
		Description: "Pull threat feeds and reload the blocklist set",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     5 * time.Minute,
		Func: func(ctx context.Context) error {
			if registry.RefreshFeeds == nil {
				return fmt.Errorf("feed refresh not configured")
			}
			return registry.RefreshFeeds(ctx)
		},
	}
}

// NewHistoryPruneTask expires old runs and findings from the history
// database.
func NewHistoryPruneTask(registry *TaskRegistry) *Task {
	return &Task{
		ID:          "history-prune",
		Name:        "History Prune",
		Description: "Expire old run history",
		Schedule:    Daily(3, 30),
		Enabled:     true,
		Timeout:     5 * time.Minute,
		Func: func(ctx context.Context) error {
			if registry.PruneHistory == nil {
				return fmt.Errorf("history store not configured")
			}
			return registry.PruneHistory(ctx)
		},
	}
}

// RegisterAll builds the serve-mode task set from the config: every
// backup and rotation block with a schedule, plus feed refresh when
// feeds exist.
func RegisterAll(s *Scheduler, cfg *config.Config, registry *TaskRegistry) error {
	for _, job := range cfg.Backups {
		if job.Schedule == "" {
			continue
		}
		task, err := NewBackupTask(registry, job)
		if err != nil {
			return err
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}

	for _, rot := range cfg.Rotations {
		if rot.Schedule == "" {
			continue
		}
		task, err := NewRotationTask(registry, rot)
		if err != nil {
			return err
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}

	if len(cfg.Feeds) > 0 && registry.RefreshFeeds != nil {
		if err := s.AddTask(NewFeedRefreshTask(registry, time.Hour)); err != nil {
			return err
		}
	}

	if registry.PruneHistory != nil {
		if err := s.AddTask(NewHistoryPruneTask(registry)); err != nil {
			return err
		}
	}
	return nil
}
