package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LogRecorded("success")
	m.LogWriteFailed()
	m.StatusUpdate("ok")
	m.Dropped()
	m.ObserveRequest("GET", "/", "200", 0.01)
	m.SecurityEvent("blocked")
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.LogRecorded("error")
	m.LogRecorded("error")
	m.Dropped()
	m.StatusUpdate("abandoned")

	if got := testutil.ToFloat64(m.LogsRecorded.WithLabelValues("error")); got != 2 {
		t.Errorf("logs_recorded{error} = %v", got)
	}
	if got := testutil.ToFloat64(m.DispatchDropped); got != 1 {
		t.Errorf("dispatch_dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.StatusUpdates.WithLabelValues("abandoned")); got != 1 {
		t.Errorf("status_updates{abandoned} = %v", got)
	}
}
