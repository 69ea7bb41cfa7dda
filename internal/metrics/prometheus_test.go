package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestRecordTargetState(t *testing.T) {
	r := Get()

	r.RecordTargetState("gw", "192.0.2.1", true, 0.012)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TargetUp.WithLabelValues("gw", "192.0.2.1")))
	assert.Equal(t, 0.012, testutil.ToFloat64(r.TargetRTT.WithLabelValues("gw", "192.0.2.1")))

	r.RecordTargetState("gw", "192.0.2.1", false, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.TargetUp.WithLabelValues("gw", "192.0.2.1")))
}

func TestRecordTaskRun(t *testing.T) {
	r := Get()

	r.RecordTaskRun("backup-etc", 1.5, false)
	r.RecordTaskRun("backup-etc", 2.0, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.TaskRuns.WithLabelValues("backup-etc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TaskFailures.WithLabelValues("backup-etc")))
}

func TestRecordBandwidth(t *testing.T) {
	r := Get()

	r.RecordBandwidth("eth0", 1000, 500, 3)
	assert.Equal(t, 1000.0, testutil.ToFloat64(r.InterfaceRxRate.WithLabelValues("eth0")))
	assert.Equal(t, 500.0, testutil.ToFloat64(r.InterfaceTxRate.WithLabelValues("eth0")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.InterfaceErrors.WithLabelValues("eth0")))
}
