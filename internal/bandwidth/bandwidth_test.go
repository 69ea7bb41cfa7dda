package bandwidth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher replays a fixed sequence of counter snapshots.
type fakeFetcher struct {
	snapshots []map[string]LinkCounters
	calls     int
}

func (f *fakeFetcher) FetchStats() (map[string]LinkCounters, error) {
	i := f.calls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.calls++
	return f.snapshots[i], nil
}

func TestStartAfterStop(t *testing.T) {
	fetcher := &fakeFetcher{snapshots: []map[string]LinkCounters{{}}}
	m := NewMonitor(nil, fetcher, time.Hour)

	m.Start()
	m.Stop()
	m.Start()
	defer m.Stop()

	// The restarted sampler must not see the channel the first Stop
	// closed, or it exits immediately.
	m.mu.Lock()
	stopCh := m.stopCh
	running := m.running
	m.mu.Unlock()

	require.True(t, running)
	select {
	case <-stopCh:
		t.Fatal("stop channel from previous cycle still in use")
	default:
	}
}

func TestIngest_ComputesRates(t *testing.T) {
	m := NewMonitor(nil, nil, 2*time.Second)

	m.ingest(map[string]LinkCounters{
		"eth0": {RxBytes: 1000, TxBytes: 500, RxPackets: 10, TxPackets: 5},
	}, 2)
	// First sample only primes the baseline.
	assert.Empty(t, m.Current())

	m.ingest(map[string]LinkCounters{
		"eth0": {RxBytes: 3000, TxBytes: 1500, RxPackets: 30, TxPackets: 15, RxErrors: 1},
	}, 2)

	rates := m.Current()
	require.Len(t, rates, 1)
	assert.Equal(t, "eth0", rates[0].Iface)
	assert.Equal(t, float64(1000), rates[0].RxBytesPS)
	assert.Equal(t, float64(500), rates[0].TxBytesPS)
	assert.Equal(t, float64(10), rates[0].RxPktsPS)
	assert.Equal(t, uint64(1), rates[0].RxErrors)
}

func TestIngest_CounterWrapYieldsZero(t *testing.T) {
	m := NewMonitor(nil, nil, time.Second)

	m.ingest(map[string]LinkCounters{"eth0": {RxBytes: 1 << 40}}, 1)
	m.ingest(map[string]LinkCounters{"eth0": {RxBytes: 100}}, 1)

	rates := m.Current()
	require.Len(t, rates, 1)
	assert.Equal(t, float64(0), rates[0].RxBytesPS)

	// Next interval resumes from the post-reset baseline.
	m.ingest(map[string]LinkCounters{"eth0": {RxBytes: 300}}, 1)
	assert.Equal(t, float64(200), m.Current()[0].RxBytesPS)
}

func TestHistory_SlidingWindow(t *testing.T) {
	m := NewMonitor(nil, nil, time.Second, WithCapacity(3))

	var total uint64
	m.ingest(map[string]LinkCounters{"eth0": {}}, 1)
	for _, delta := range []uint64{10, 20, 30, 40} {
		total += delta
		m.ingest(map[string]LinkCounters{"eth0": {RxBytes: total}}, 1)
	}

	rx, _ := m.History("eth0")
	assert.Equal(t, []float64{20, 30, 40}, rx)

	rx, tx := m.History("unknown")
	assert.Empty(t, rx)
	assert.Empty(t, tx)
}

func TestSample(t *testing.T) {
	f := &fakeFetcher{snapshots: []map[string]LinkCounters{
		{
			"eth0": {RxBytes: 0, TxBytes: 0},
			"eth1": {RxBytes: 100, TxBytes: 100},
		},
		{
			"eth0": {RxBytes: 1024, TxBytes: 512},
			"eth1": {RxBytes: 100, TxBytes: 100},
		},
	}}

	res, err := Sample(context.Background(), f, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.Len(t, res.Rates, 2)

	// Sorted by interface name.
	assert.Equal(t, "eth0", res.Rates[0].Iface)
	assert.Equal(t, "eth1", res.Rates[1].Iface)
	assert.InDelta(t, 1024/0.01, res.Rates[0].RxBytesPS, 0.1)
	assert.Equal(t, float64(0), res.Rates[1].RxBytesPS)
}

func TestSample_FilterByIface(t *testing.T) {
	f := &fakeFetcher{snapshots: []map[string]LinkCounters{
		{"eth0": {}, "eth1": {}},
		{"eth0": {RxBytes: 10}, "eth1": {RxBytes: 10}},
	}}

	res, err := Sample(context.Background(), f, time.Millisecond, []string{"eth1"})
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, "eth1", res.Rates[0].Iface)

	_, err = Sample(context.Background(), f, time.Millisecond, []string{"wg9"})
	assert.Error(t, err)
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "500 B/s", FormatRate(500))
	assert.Equal(t, "2.00 KB/s", FormatRate(2048))
	assert.Equal(t, "1.50 MB/s", FormatRate(1.5*1024*1024))
	assert.Equal(t, "2.00 GB/s", FormatRate(2*1024*1024*1024))
}

func TestRingBuffer(t *testing.T) {
	rb := newRingBuffer(3)
	assert.Empty(t, rb.Snapshot())
	assert.Equal(t, 0, rb.Len())

	rb.Add(1)
	rb.Add(2)
	assert.Equal(t, []float64{1, 2}, rb.Snapshot())

	rb.Add(3)
	rb.Add(4)
	assert.Equal(t, []float64{2, 3, 4}, rb.Snapshot())
	assert.Equal(t, 3, rb.Len())
}
