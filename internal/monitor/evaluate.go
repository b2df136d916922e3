package monitor

import "github.com/smazurov/browserpool/internal/events"

// Thresholds are the warn and break levels for CPU (percent) and memory (GB).
// A level of zero or less disables that check.
type Thresholds struct {
	CPUWarn     float64 `json:"cpu_warn"`
	CPUBreak    float64 `json:"cpu_break"`
	MemoryWarn  float64 `json:"memory_warn"`
	MemoryBreak float64 `json:"memory_break"`
}

// Alert is one threshold crossing.
type Alert struct {
	Level     string
	Metric    string
	Value     float64
	Threshold float64
	Snapshot  Snapshot
}

// Evaluate checks CPU and memory independently. At or above break yields a
// danger alert only. At or above warn yields a warn alert.
func Evaluate(s Snapshot, t Thresholds) []Alert {
	var alerts []Alert
	if a, ok := check(s, events.MetricCPU, s.CPU, t.CPUWarn, t.CPUBreak); ok {
		alerts = append(alerts, a)
	}
	if a, ok := check(s, events.MetricMemory, s.Memory, t.MemoryWarn, t.MemoryBreak); ok {
		alerts = append(alerts, a)
	}
	return alerts
}

func check(s Snapshot, metric string, value, warn, brk float64) (Alert, bool) {
	switch {
	case brk > 0 && value >= brk:
		return Alert{Level: events.LevelDanger, Metric: metric, Value: value, Threshold: brk, Snapshot: s}, true
	case warn > 0 && value >= warn:
		return Alert{Level: events.LevelWarn, Metric: metric, Value: value, Threshold: warn, Snapshot: s}, true
	}
	return Alert{}, false
}
