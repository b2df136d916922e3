package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUnitMetricsCache(t *testing.T) {
	const unitID = 101

	DeleteUnitMetrics(unitID)
	if m := GetUnitMetrics(unitID); m != nil {
		t.Error("expected nil for unknown unit")
	}

	SetUnitSample(unitID, 12.5, 0.25, 3)

	m := GetUnitMetrics(unitID)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.CPU != 12.5 || m.MemoryGB != 0.25 || m.Sessions != 3 {
		t.Errorf("unexpected metrics: %+v", m)
	}

	// Returned copy is independent
	m.CPU = 999
	if again := GetUnitMetrics(unitID); again.CPU != 12.5 {
		t.Errorf("cache was modified, CPU = %v", again.CPU)
	}

	if got := testutil.ToFloat64(unitCPU.WithLabelValues("101")); got != 12.5 {
		t.Errorf("cpu gauge = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(unitSessions.WithLabelValues("101")); got != 3 {
		t.Errorf("sessions gauge = %v, want 3", got)
	}

	DeleteUnitMetrics(unitID)
	if m := GetUnitMetrics(unitID); m != nil {
		t.Error("expected nil after delete")
	}
}

func TestResetUnitMetrics(t *testing.T) {
	SetUnitSample(201, 1, 1, 1)
	SetUnitSample(202, 2, 2, 2)

	ResetUnitMetrics()

	if GetUnitMetrics(201) != nil || GetUnitMetrics(202) != nil {
		t.Error("expected empty cache after reset")
	}
	if n := testutil.CollectAndCount(unitCPU); n != 0 {
		t.Errorf("expected no cpu series after reset, got %d", n)
	}
}

func TestPoolUnits(t *testing.T) {
	SetPoolUnits(5, 2, 3)

	if got := testutil.ToFloat64(poolUnits.WithLabelValues("idle")); got != 2 {
		t.Errorf("idle = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poolUnits.WithLabelValues("in_use")); got != 3 {
		t.Errorf("in_use = %v, want 3", got)
	}
}

func TestAlertCounter(t *testing.T) {
	before := testutil.ToFloat64(alerts.WithLabelValues("danger", "cpu"))
	IncAlert("danger", "cpu")
	IncAlert("danger", "cpu")

	if got := testutil.ToFloat64(alerts.WithLabelValues("danger", "cpu")); got != before+2 {
		t.Errorf("alerts = %v, want %v", got, before+2)
	}
}

func TestObserveSession(t *testing.T) {
	before := testutil.ToFloat64(sessionsIssued.WithLabelValues(ResultSuccess))
	ObserveSession(ResultSuccess, 120*time.Millisecond)
	ObserveSession(ResultRejected, 0)

	if got := testutil.ToFloat64(sessionsIssued.WithLabelValues(ResultSuccess)); got != before+1 {
		t.Errorf("success count = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(sessionsIssued.WithLabelValues(ResultRejected)); got < 1 {
		t.Errorf("rejected count = %v, want >= 1", got)
	}
}
