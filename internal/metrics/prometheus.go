// Package metrics exposes serve-mode gauges and counters in
// Prometheus format.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all toolkit metrics.
type Registry struct {
	// Ping monitors
	TargetUp     *prometheus.GaugeVec
	TargetRTT    *prometheus.GaugeVec
	TargetFlaps  *prometheus.CounterVec
	TargetChecks *prometheus.CounterVec

	// Bandwidth
	InterfaceRxRate *prometheus.GaugeVec
	InterfaceTxRate *prometheus.GaugeVec
	InterfaceErrors *prometheus.GaugeVec

	// Blocklist
	BlocklistEntries    *prometheus.GaugeVec
	BlocklistLastUpdate prometheus.Gauge
	FeedErrors          *prometheus.CounterVec

	// Containers
	ContainersRunning   prometheus.Gauge
	ContainersUnhealthy prometheus.Gauge

	// Scheduler
	TaskRuns     *prometheus.CounterVec
	TaskFailures *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// System
	Uptime prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.TargetUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_target_up",
		Help: "Ping target reachability (1 up, 0 down)",
	}, []string{"monitor", "target"})

	r.TargetRTT = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_target_rtt_seconds",
		Help: "Last round-trip time to a ping target",
	}, []string{"monitor", "target"})

	r.TargetFlaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshub_target_transitions_total",
		Help: "Up/down transitions per ping target",
	}, []string{"monitor", "state"})

	r.TargetChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshub_target_checks_total",
		Help: "Ping checks performed per target",
	}, []string{"monitor"})

	r.InterfaceRxRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_interface_rx_bytes_per_second",
		Help: "Receive throughput per interface",
	}, []string{"interface"})

	r.InterfaceTxRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_interface_tx_bytes_per_second",
		Help: "Transmit throughput per interface",
	}, []string{"interface"})

	r.InterfaceErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_interface_errors_total",
		Help: "Cumulative rx+tx errors per interface",
	}, []string{"interface"})

	r.BlocklistEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opshub_blocklist_entries",
		Help: "Entries loaded into the firewall blocklist set",
	}, []string{"set"})

	r.BlocklistLastUpdate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opshub_blocklist_last_update_timestamp",
		Help: "Unix timestamp of the last successful feed refresh",
	})

	r.FeedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshub_feed_errors_total",
		Help: "Failed threat feed fetches",
	}, []string{"feed"})

	r.ContainersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opshub_containers_running",
		Help: "Containers in running state",
	})

	r.ContainersUnhealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opshub_containers_unhealthy",
		Help: "Containers that are restarting or failing healthchecks",
	})

	r.TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshub_task_runs_total",
		Help: "Scheduled task executions",
	}, []string{"task"})

	r.TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshub_task_failures_total",
		Help: "Scheduled task executions that returned an error",
	}, []string{"task"})

	r.TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opshub_task_duration_seconds",
		Help:    "Scheduled task execution time",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"task"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opshub_uptime_seconds",
		Help: "Seconds since the daemon started",
	})

	return r
}

// RecordTargetState publishes a monitor's reachability.
func (r *Registry) RecordTargetState(monitor, target string, up bool, rttSeconds float64) {
	v := 0.0
	if up {
		v = 1.0
	}
	r.TargetUp.WithLabelValues(monitor, target).Set(v)
	if rttSeconds > 0 {
		r.TargetRTT.WithLabelValues(monitor, target).Set(rttSeconds)
	}
}

// RecordTransition counts an up/down flip.
func (r *Registry) RecordTransition(monitor, state string) {
	r.TargetFlaps.WithLabelValues(monitor, state).Inc()
}

// RecordTaskRun publishes one scheduled task execution.
func (r *Registry) RecordTaskRun(task string, seconds float64, failed bool) {
	r.TaskRuns.WithLabelValues(task).Inc()
	r.TaskDuration.WithLabelValues(task).Observe(seconds)
	if failed {
		r.TaskFailures.WithLabelValues(task).Inc()
	}
}

// RecordBandwidth publishes interface throughput.
func (r *Registry) RecordBandwidth(iface string, rxBPS, txBPS float64, errors uint64) {
	r.InterfaceRxRate.WithLabelValues(iface).Set(rxBPS)
	r.InterfaceTxRate.WithLabelValues(iface).Set(txBPS)
	r.InterfaceErrors.WithLabelValues(iface).Set(float64(errors))
}
