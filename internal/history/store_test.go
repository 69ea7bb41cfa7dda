package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(nil, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now()
	_, err := s.RecordRun(ctx, Run{
		Command:   "scan",
		Target:    "192.0.2.0/28",
		Summary:   "3 open ports",
		OK:        true,
		Details:   map[string]any{"open": 3},
		StartedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	id, err := s.RecordRun(ctx, Run{
		Command:   "backup",
		Target:    "etc",
		Summary:   "archive written",
		OK:        false,
		StartedAt: now,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	runs, err := s.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, "backup", runs[0].Command)
	assert.False(t, runs[0].OK)
	assert.Equal(t, "scan", runs[1].Command)

	scans, err := s.RecentRuns(ctx, "scan", 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "192.0.2.0/28", scans[0].Target)
}

func TestUpsertFindings_TracksFirstSeen(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	fresh, err := s.UpsertFindings(ctx, []Finding{
		{Host: "192.0.2.5", Port: 22, Service: "ssh", FirstSeen: day1, LastSeen: day1},
		{Host: "192.0.2.5", Port: 80, Service: "http", FirstSeen: day1, LastSeen: day1},
	})
	require.NoError(t, err)
	assert.Len(t, fresh, 2, "everything is new on first scan")

	// Second scan: port 80 still open, port 443 newly open.
	day2 := day1.Add(24 * time.Hour)
	fresh, err = s.UpsertFindings(ctx, []Finding{
		{Host: "192.0.2.5", Port: 80, Service: "http", Banner: "nginx", FirstSeen: day2, LastSeen: day2},
		{Host: "192.0.2.5", Port: 443, Service: "https", FirstSeen: day2, LastSeen: day2},
	})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, 443, fresh[0].Port)

	findings, err := s.FindingsForHost(ctx, "192.0.2.5")
	require.NoError(t, err)
	require.Len(t, findings, 3)

	var port80 Finding
	for _, f := range findings {
		if f.Port == 80 {
			port80 = f
		}
	}
	assert.Equal(t, day1, port80.FirstSeen.UTC(), "first_seen survives the upsert")
	assert.Equal(t, day2, port80.LastSeen.UTC(), "last_seen advances")
	assert.Equal(t, "nginx", port80.Banner)
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	old := time.Now().Add(-100 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	_, err := s.RecordRun(ctx, Run{Command: "scan", StartedAt: old})
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, Run{Command: "scan", StartedAt: recent})
	require.NoError(t, err)

	_, err = s.UpsertFindings(ctx, []Finding{
		{Host: "a", Port: 22, FirstSeen: old, LastSeen: old},
		{Host: "b", Port: 22, FirstSeen: old, LastSeen: recent},
	})
	require.NoError(t, err)

	removed, err := s.Prune(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "one run and one finding expired")

	runs, err := s.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	left, err := s.FindingsForHost(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
