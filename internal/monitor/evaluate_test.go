package monitor

import (
	"testing"

	"github.com/smazurov/browserpool/internal/events"
)

func TestEvaluateCPU(t *testing.T) {
	thresholds := Thresholds{CPUWarn: 50, CPUBreak: 80}

	tests := []struct {
		name      string
		cpu       float64
		wantLevel string
	}{
		{"below warn", 49.99, ""},
		{"at warn", 50, events.LevelWarn},
		{"just below break", 79.99, events.LevelWarn},
		{"at break", 80, events.LevelDanger},
		{"above break", 150, events.LevelDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := Evaluate(Snapshot{ID: "POOL_1(PID: 1)", CPU: tt.cpu}, thresholds)
			if tt.wantLevel == "" {
				if len(alerts) != 0 {
					t.Errorf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("expected exactly one alert, got %+v", alerts)
			}
			if alerts[0].Level != tt.wantLevel || alerts[0].Metric != events.MetricCPU {
				t.Errorf("got %s/%s, want %s/cpu", alerts[0].Level, alerts[0].Metric, tt.wantLevel)
			}
		})
	}
}

func TestEvaluateMemoryIndependentOfCPU(t *testing.T) {
	thresholds := Thresholds{CPUWarn: 50, CPUBreak: 80, MemoryWarn: 1, MemoryBreak: 2}

	alerts := Evaluate(Snapshot{CPU: 90, Memory: 1.5}, thresholds)
	if len(alerts) != 2 {
		t.Fatalf("expected two alerts, got %+v", alerts)
	}
	if alerts[0].Metric != events.MetricCPU || alerts[0].Level != events.LevelDanger {
		t.Errorf("unexpected cpu alert: %+v", alerts[0])
	}
	if alerts[1].Metric != events.MetricMemory || alerts[1].Level != events.LevelWarn || alerts[1].Threshold != 1 {
		t.Errorf("unexpected memory alert: %+v", alerts[1])
	}
}

func TestEvaluateDisabledThresholds(t *testing.T) {
	if alerts := Evaluate(Snapshot{CPU: 100, Memory: 64}, Thresholds{}); len(alerts) != 0 {
		t.Errorf("zero thresholds should disable checks, got %+v", alerts)
	}
}

func TestDisplayID(t *testing.T) {
	if got := DisplayID(3, 4242); got != "POOL_3(PID: 4242)" {
		t.Errorf("DisplayID = %q", got)
	}
}

func TestCPUPercent(t *testing.T) {
	base := cpuReading{seconds: 10}
	base.at = base.at.Add(1)
	cur := cpuReading{seconds: 10.5, at: base.at.Add(2 * 1e9)}

	if got := cpuPercent(base, cur); got != 25 {
		t.Errorf("cpuPercent = %v, want 25", got)
	}
	if got := cpuPercent(cur, cur); got != 0 {
		t.Errorf("zero elapsed should report 0, got %v", got)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		0.123:   0.12,
		0.125:   0.13,
		12.3456: 12.35,
		0:       0,
	}
	for in, want := range tests {
		if got := round2(in); got != want {
			t.Errorf("round2(%v) = %v, want %v", in, got, want)
		}
	}
}
