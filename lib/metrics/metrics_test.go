package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperationCountsByOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation(OpCreateVersion, "ok", 5*time.Millisecond)
	m.RecordOperation(OpCreateVersion, "ok", time.Millisecond)
	m.RecordOperation(OpMergeBranch, "conflict", time.Millisecond)
	m.RecordMergeConflict()

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpCreateVersion, "ok")); got != 2 {
		t.Errorf("create_version ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpMergeBranch, "conflict")); got != 1 {
		t.Errorf("merge_branch conflict = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MergeConflictsTotal); got != 1 {
		t.Errorf("merge conflicts = %v, want 1", got)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics

	m.RecordHTTPRequest("GET", "/api/versions", 200, time.Millisecond)
	m.RecordOperation(OpPublish, "ok", time.Millisecond)
	m.RecordMergeConflict()
	m.RecordSessionCommitConflict()
	m.RecordSessionChange()
	m.RegisterSessionGauges(nil, nil)
}

func TestSessionGaugesPullAtScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	open := 0.0
	m.RegisterSessionGauges(func() float64 { return open }, func() float64 { return open * 2 })

	open = 3
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		if len(mf.GetMetric()) == 1 && mf.GetMetric()[0].GetGauge() != nil {
			values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if values["vellum_open_sessions"] != 3 {
		t.Errorf("open sessions = %v, want 3", values["vellum_open_sessions"])
	}
	if values["vellum_session_participants"] != 6 {
		t.Errorf("participants = %v, want 6", values["vellum_session_participants"])
	}
}
