// Package netmon watches ping targets and tracks up/down state with a
// consecutive-failure threshold, so one dropped packet does not flap
// the status.
package netmon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// State is a target's reachability verdict.
type State int

const (
	StateUnknown State = iota
	StateUp
	StateDown
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// TargetStatus is the current view of one monitored target.
type TargetStatus struct {
	Name        string        `json:"name"`
	Target      string        `json:"target"`
	State       State         `json:"-"`
	StateName   string        `json:"state"`
	ConsecFails int           `json:"consec_fails"`
	LastRTT     time.Duration `json:"last_rtt"`
	LastChange  time.Time     `json:"last_change"`
	Checks      uint64        `json:"checks"`
	Failures    uint64        `json:"failures"`
}

// Statuses renders the monitor table.
type Statuses []TargetStatus

// Headers implements report.Result.
func (Statuses) Headers() []string {
	return []string{"NAME", "TARGET", "STATE", "RTT", "CHECKS", "FAILURES"}
}

// Rows implements report.Result.
func (s Statuses) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, t := range s {
		rtt := "-"
		if t.LastRTT > 0 {
			rtt = fmt.Sprintf("%.1fms", float64(t.LastRTT)/float64(time.Millisecond))
		}
		rows = append(rows, []string{
			t.Name, t.Target, t.State.String(), rtt,
			fmt.Sprintf("%d", t.Checks), fmt.Sprintf("%d", t.Failures),
		})
	}
	return rows
}

var _ report.Result = (Statuses)(nil)

// TransitionFunc is invoked on every up/down state change.
type TransitionFunc func(status TargetStatus)

// Monitor runs periodic ping checks against configured targets.
type Monitor struct {
	logger       *logging.Logger
	targets      []config.Monitor
	onTransition TransitionFunc

	mu       sync.RWMutex
	statuses map[string]*TargetStatus

	// ping is swappable for tests.
	ping func(ctx context.Context, target string, timeout time.Duration) (time.Duration, error)
}

// New creates a monitor over the configured targets.
func New(logger *logging.Logger, targets []config.Monitor, onTransition TransitionFunc) *Monitor {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	m := &Monitor{
		logger:       logger.WithComponent("netmon"),
		targets:      targets,
		onTransition: onTransition,
		statuses:     make(map[string]*TargetStatus, len(targets)),
		ping:         pingOnce,
	}
	for _, t := range targets {
		m.statuses[t.Name] = &TargetStatus{
			Name:   t.Name,
			Target: t.Target,
			State:  StateUnknown,
		}
	}
	return m
}

// Run blocks and checks every target on its interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, target := range m.targets {
		wg.Add(1)
		go func(t config.Monitor) {
			defer wg.Done()
			m.watch(ctx, t)
		}(target)
	}
	wg.Wait()
}

func (m *Monitor) watch(ctx context.Context, t config.Monitor) {
	interval, err := config.ParseDurationField(t.Interval, config.DefaultMonitorInterval)
	if err != nil {
		m.logger.Error("bad monitor interval, using default", "monitor", t.Name, "error", err)
		interval = config.DefaultMonitorInterval
	}

	m.logger.Info("monitoring target", "monitor", t.Name, "target", t.Target, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx, t)
		}
	}
}

// Check performs one ping round for a target and updates its state.
func (m *Monitor) Check(ctx context.Context, t config.Monitor) {
	threshold := t.Failures
	if threshold <= 0 {
		threshold = config.DefaultMonitorFailures
	}

	rtt, err := m.ping(ctx, t.Target, 3*time.Second)

	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.statuses[t.Name]
	if status == nil {
		status = &TargetStatus{Name: t.Name, Target: t.Target, State: StateUnknown}
		m.statuses[t.Name] = status
	}
	status.Checks++

	if err == nil {
		status.LastRTT = rtt
		status.ConsecFails = 0
		if status.State != StateUp {
			m.transition(status, StateUp)
		}
		return
	}

	status.Failures++
	status.ConsecFails++
	m.logger.Debug("ping failed",
		"monitor", t.Name,
		"target", t.Target,
		"consec", status.ConsecFails,
		"error", err,
	)
	if status.ConsecFails >= threshold && status.State != StateDown {
		m.transition(status, StateDown)
	}
}

// transition must hold m.mu.
func (m *Monitor) transition(status *TargetStatus, to State) {
	from := status.State
	status.State = to
	status.StateName = to.String()
	status.LastChange = clock.Now()

	if to == StateDown {
		m.logger.Warn("target DOWN",
			"monitor", status.Name,
			"target", status.Target,
			"consec_fails", status.ConsecFails,
		)
	} else if from == StateDown {
		m.logger.Info("target recovered",
			"monitor", status.Name,
			"target", status.Target,
		)
	} else {
		m.logger.Info("target up", "monitor", status.Name, "target", status.Target)
	}

	if m.onTransition != nil {
		m.onTransition(*status)
	}
}

// Snapshot returns target statuses sorted by name.
func (m *Monitor) Snapshot() Statuses {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(Statuses, 0, len(m.statuses))
	for _, s := range m.statuses {
		cp := *s
		cp.StateName = cp.State.String()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// pingOnce sends a single unprivileged ICMP echo.
func pingOnce(ctx context.Context, target string, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return 0, fmt.Errorf("pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no reply from %s", target)
	}
	return stats.AvgRtt, nil
}
