package netmon

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"opshub.dev/opshub/internal/report"
)

// PingResult is a one-shot ping run against a single target.
type PingResult struct {
	Target   string        `json:"target"`
	Addr     string        `json:"addr,omitempty"`
	Sent     int           `json:"sent"`
	Received int           `json:"received"`
	Loss     float64       `json:"loss_pct"`
	Min      time.Duration `json:"min"`
	Avg      time.Duration `json:"avg"`
	Max      time.Duration `json:"max"`
	Stddev   time.Duration `json:"stddev"`
}

// Headers implements report.Result.
func (p *PingResult) Headers() []string {
	return []string{"TARGET", "SENT", "RECV", "LOSS", "MIN", "AVG", "MAX"}
}

// Rows implements report.Result.
func (p *PingResult) Rows() [][]string {
	ms := func(d time.Duration) string {
		if d == 0 {
			return "-"
		}
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return [][]string{{
		p.Target,
		fmt.Sprintf("%d", p.Sent),
		fmt.Sprintf("%d", p.Received),
		fmt.Sprintf("%.0f%%", p.Loss),
		ms(p.Min), ms(p.Avg), ms(p.Max),
	}}
}

var _ report.Result = (*PingResult)(nil)

// Ping sends count unprivileged echoes and returns the statistics.
func Ping(ctx context.Context, target string, count int, timeout time.Duration) (*PingResult, error) {
	if count <= 0 {
		count = 4
	}
	if timeout <= 0 {
		timeout = time.Duration(count) * 2 * time.Second
	}

	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("pinger: %w", err)
	}
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, err
	}

	stats := pinger.Statistics()
	return &PingResult{
		Target:   target,
		Addr:     stats.IPAddr.String(),
		Sent:     stats.PacketsSent,
		Received: stats.PacketsRecv,
		Loss:     stats.PacketLoss,
		Min:      stats.MinRtt,
		Avg:      stats.AvgRtt,
		Max:      stats.MaxRtt,
		Stddev:   stats.StdDevRtt,
	}, nil
}
