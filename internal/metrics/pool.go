package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session outcomes.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

var (
	poolUnits = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "units",
		Help:      "Browser units by state",
	}, []string{"state"})

	alerts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "alerts_total",
		Help:      "Threshold alerts raised",
	}, []string{"level", "metric"})

	sessionsIssued = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "issued_total",
		Help:      "IssueSession calls by result",
	}, []string{"result"})

	sessionDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "duration_seconds",
		Help:      "Time from IssueSession call to release",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// SetPoolUnits records unit-tier pool counts.
func SetPoolUnits(total, idle, inUse int) {
	poolUnits.WithLabelValues("total").Set(float64(total))
	poolUnits.WithLabelValues("idle").Set(float64(idle))
	poolUnits.WithLabelValues("in_use").Set(float64(inUse))
}

// IncAlert counts a threshold alert.
func IncAlert(level, metric string) {
	alerts.WithLabelValues(level, metric).Inc()
}

// ObserveSession records the outcome and duration of one IssueSession call.
func ObserveSession(result string, d time.Duration) {
	sessionsIssued.WithLabelValues(result).Inc()
	if result != ResultRejected {
		sessionDuration.Observe(d.Seconds())
	}
}
