package netmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opshub.dev/opshub/internal/config"
)

func targetCfg(failures int) config.Monitor {
	return config.Monitor{Name: "gw", Target: "192.0.2.1", Failures: failures}
}

// scriptedPing fails while down is true.
type scriptedPing struct {
	down bool
}

func (s *scriptedPing) ping(ctx context.Context, target string, timeout time.Duration) (time.Duration, error) {
	if s.down {
		return 0, errors.New("no reply")
	}
	return 12 * time.Millisecond, nil
}

func TestCheck_DownAfterThreshold(t *testing.T) {
	script := &scriptedPing{}
	m := New(nil, []config.Monitor{targetCfg(3)}, nil)
	m.ping = script.ping

	ctx := context.Background()
	m.Check(ctx, m.targets[0])
	require.Equal(t, StateUp, m.Snapshot()[0].State)

	script.down = true
	m.Check(ctx, m.targets[0])
	m.Check(ctx, m.targets[0])
	assert.Equal(t, StateUp, m.Snapshot()[0].State, "below threshold stays up")
	assert.Equal(t, 2, m.Snapshot()[0].ConsecFails)

	m.Check(ctx, m.targets[0])
	assert.Equal(t, StateDown, m.Snapshot()[0].State)
}

func TestCheck_RecoveryResetsFailures(t *testing.T) {
	script := &scriptedPing{down: true}
	m := New(nil, []config.Monitor{targetCfg(1)}, nil)
	m.ping = script.ping

	ctx := context.Background()
	m.Check(ctx, m.targets[0])
	require.Equal(t, StateDown, m.Snapshot()[0].State)

	script.down = false
	m.Check(ctx, m.targets[0])

	status := m.Snapshot()[0]
	assert.Equal(t, StateUp, status.State)
	assert.Equal(t, 0, status.ConsecFails)
	assert.Equal(t, 12*time.Millisecond, status.LastRTT)
	assert.Equal(t, uint64(2), status.Checks)
	assert.Equal(t, uint64(1), status.Failures)
}

func TestCheck_TransitionCallback(t *testing.T) {
	var transitions []string
	script := &scriptedPing{}
	m := New(nil, []config.Monitor{targetCfg(1)}, func(s TargetStatus) {
		transitions = append(transitions, s.State.String())
	})
	m.ping = script.ping

	ctx := context.Background()
	m.Check(ctx, m.targets[0]) // unknown -> up
	script.down = true
	m.Check(ctx, m.targets[0]) // up -> down
	m.Check(ctx, m.targets[0]) // already down, no transition
	script.down = false
	m.Check(ctx, m.targets[0]) // down -> up

	assert.Equal(t, []string{"up", "down", "up"}, transitions)
}

func TestCheck_DefaultThreshold(t *testing.T) {
	script := &scriptedPing{down: true}
	m := New(nil, []config.Monitor{targetCfg(0)}, nil)
	m.ping = script.ping

	ctx := context.Background()
	for i := 0; i < config.DefaultMonitorFailures-1; i++ {
		m.Check(ctx, m.targets[0])
	}
	assert.NotEqual(t, StateDown, m.Snapshot()[0].State)

	m.Check(ctx, m.targets[0])
	assert.Equal(t, StateDown, m.Snapshot()[0].State)
}

func TestSnapshot_Sorted(t *testing.T) {
	m := New(nil, []config.Monitor{
		{Name: "zeta", Target: "a"},
		{Name: "alpha", Target: "b"},
	}, nil)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Name)
	assert.Equal(t, "zeta", snap[1].Name)
	assert.Equal(t, "unknown", snap[0].StateName)
}

func TestStatusesRows(t *testing.T) {
	s := Statuses{
		{Name: "gw", Target: "192.0.2.1", State: StateUp, LastRTT: 2500 * time.Microsecond, Checks: 10, Failures: 1},
		{Name: "dns", Target: "192.0.2.2", State: StateDown},
	}
	rows := s.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "up", rows[0][2])
	assert.Equal(t, "2.5ms", rows[0][3])
	assert.Equal(t, "-", rows[1][3])
}
