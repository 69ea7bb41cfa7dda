// Package bandwidth samples interface byte counters and turns them
// into per-interface throughput rates with a sliding history window.
package bandwidth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// LinkCounters is one interface's cumulative kernel counters.
type LinkCounters struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	RxErrors  uint64
	TxErrors  uint64
}

// LinkStatsFetcher abstracts counter retrieval so the monitor can be
// tested without netlink.
type LinkStatsFetcher interface {
	// FetchStats returns cumulative counters keyed by interface name.
	FetchStats() (map[string]LinkCounters, error)
}

// Rate is the computed throughput of one interface over one interval.
type Rate struct {
	Iface     string  `json:"iface"`
	RxBytesPS float64 `json:"rx_bytes_ps"`
	TxBytesPS float64 `json:"tx_bytes_ps"`
	RxPktsPS  float64 `json:"rx_pkts_ps"`
	TxPktsPS  float64 `json:"tx_pkts_ps"`
	RxErrors  uint64  `json:"rx_errors"`       // cumulative
	TxErrors  uint64  `json:"tx_errors"`       // cumulative
	Speed     string  `json:"speed,omitempty"` // link speed/duplex annotation
}

// Result is one sampling run across interfaces.
type Result struct {
	Rates     []Rate        `json:"rates"`
	Interval  time.Duration `json:"interval"`
	SampledAt time.Time     `json:"sampled_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"IFACE", "RX", "TX", "RX PKT/S", "TX PKT/S", "ERRORS", "LINK"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Rates))
	for _, rate := range r.Rates {
		rows = append(rows, []string{
			rate.Iface,
			FormatRate(rate.RxBytesPS),
			FormatRate(rate.TxBytesPS),
			fmt.Sprintf("%.0f", rate.RxPktsPS),
			fmt.Sprintf("%.0f", rate.TxPktsPS),
			fmt.Sprintf("%d", rate.RxErrors+rate.TxErrors),
			rate.Speed,
		})
	}
	return rows
}

var _ report.Result = (*Result)(nil)

// FormatRate renders bytes-per-second in human units.
func FormatRate(bps float64) string {
	switch {
	case bps >= 1<<30:
		return fmt.Sprintf("%.2f GB/s", bps/(1<<30))
	case bps >= 1<<20:
		return fmt.Sprintf("%.2f MB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.2f KB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}

// Monitor periodically samples counters and keeps a rate history per
// interface.
type Monitor struct {
	mu       sync.RWMutex
	fetcher  LinkStatsFetcher
	logger   *logging.Logger
	interval time.Duration
	capacity int

	lastRaw map[string]LinkCounters
	rxHist  map[string]*ringBuffer
	txHist  map[string]*ringBuffer
	current map[string]Rate

	stopCh  chan struct{}
	running bool
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithCapacity sets the history window size in samples. Default 60.
func WithCapacity(n int) Option {
	return func(m *Monitor) { m.capacity = n }
}

// NewMonitor creates a bandwidth monitor polling at interval.
func NewMonitor(logger *logging.Logger, fetcher LinkStatsFetcher, interval time.Duration, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	m := &Monitor{
		fetcher:  fetcher,
		logger:   logger.WithComponent("bandwidth"),
		interval: interval,
		capacity: 60,
		lastRaw:  make(map[string]LinkCounters),
		rxHist:   make(map[string]*ringBuffer),
		txHist:   make(map[string]*ringBuffer),
		current:  make(map[string]Rate),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins background polling. A stopped monitor can be started
// again.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	// Fresh channel per cycle; the previous one is closed.
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	ticker := time.NewTicker(m.interval)
	go func() {
		for {
			select {
			case <-stopCh:
				ticker.Stop()
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// Stop shuts the monitor down.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()
}

// tick performs one collection cycle. Errors are logged; sampling is
// best effort.
func (m *Monitor) tick() {
	stats, err := m.fetcher.FetchStats()
	if err != nil {
		m.logger.Warn("stats fetch failed", "error", err)
		return
	}
	m.ingest(stats, m.interval.Seconds())
}

// ingest folds one counter snapshot into the rate history. Split from
// tick so tests can drive it with fixed snapshots.
func (m *Monitor) ingest(stats map[string]LinkCounters, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for iface, cur := range stats {
		prev, seen := m.lastRaw[iface]
		m.lastRaw[iface] = cur
		if !seen {
			// Two samples are needed before a rate exists.
			m.rxHist[iface] = newRingBuffer(m.capacity)
			m.txHist[iface] = newRingBuffer(m.capacity)
			continue
		}

		rate := Rate{
			Iface:     iface,
			RxBytesPS: counterDelta(cur.RxBytes, prev.RxBytes) / seconds,
			TxBytesPS: counterDelta(cur.TxBytes, prev.TxBytes) / seconds,
			RxPktsPS:  counterDelta(cur.RxPackets, prev.RxPackets) / seconds,
			TxPktsPS:  counterDelta(cur.TxPackets, prev.TxPackets) / seconds,
			RxErrors:  cur.RxErrors,
			TxErrors:  cur.TxErrors,
		}
		m.rxHist[iface].Add(rate.RxBytesPS)
		m.txHist[iface].Add(rate.TxBytesPS)
		m.current[iface] = rate
	}
}

// counterDelta guards against counter reset or wrap: a shrinking
// counter yields zero, not a bogus spike.
func counterDelta(cur, prev uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

// Current returns the latest rate per interface, sorted by name.
func (m *Monitor) Current() []Rate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rates := make([]Rate, 0, len(m.current))
	for _, r := range m.current {
		rates = append(rates, r)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Iface < rates[j].Iface })
	return rates
}

// History returns the rx and tx rate history of one interface,
// oldest first.
func (m *Monitor) History(iface string) (rx, tx []float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if buf, ok := m.rxHist[iface]; ok {
		rx = buf.Snapshot()
	}
	if buf, ok := m.txHist[iface]; ok {
		tx = buf.Snapshot()
	}
	return rx, tx
}

// Sample takes two counter snapshots interval apart and returns the
// rates, for one-shot CLI use.
func Sample(ctx context.Context, fetcher LinkStatsFetcher, interval time.Duration, ifaces []string) (*Result, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	first, err := fetcher.FetchStats()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interval):
	}

	second, err := fetcher.FetchStats()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(ifaces))
	for _, i := range ifaces {
		want[i] = true
	}

	result := &Result{Interval: interval, SampledAt: clock.Now()}
	seconds := interval.Seconds()
	for iface, cur := range second {
		if len(want) > 0 && !want[iface] {
			continue
		}
		prev, ok := first[iface]
		if !ok {
			continue
		}
		result.Rates = append(result.Rates, Rate{
			Iface:     iface,
			RxBytesPS: counterDelta(cur.RxBytes, prev.RxBytes) / seconds,
			TxBytesPS: counterDelta(cur.TxBytes, prev.TxBytes) / seconds,
			RxPktsPS:  counterDelta(cur.RxPackets, prev.RxPackets) / seconds,
			TxPktsPS:  counterDelta(cur.TxPackets, prev.TxPackets) / seconds,
			RxErrors:  cur.RxErrors,
			TxErrors:  cur.TxErrors,
			Speed:     linkSpeed(iface),
		})
	}
	sort.Slice(result.Rates, func(i, j int) bool { return result.Rates[i].Iface < result.Rates[j].Iface })

	if len(ifaces) > 0 && len(result.Rates) == 0 {
		return nil, fmt.Errorf("no matching interfaces: %v", ifaces)
	}
	return result, nil
}
