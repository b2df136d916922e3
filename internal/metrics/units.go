// Package metrics provides Prometheus metrics for browser units and the pool.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "browserpool"

var (
	unitCPU = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "cpu_percent",
		Help:      "Browser process CPU usage since the previous sample",
	}, []string{"unit_id"})

	unitMemory = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "memory_gigabytes",
		Help:      "Browser process resident memory",
	}, []string{"unit_id"})

	unitSessions = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "sessions",
		Help:      "Sessions currently created in the unit's session pool",
	}, []string{"unit_id"})

	// Local cache for API access.
	unitCache   = make(map[int]*UnitMetrics)
	unitCacheMu sync.RWMutex
)

// UnitMetrics holds the last sampled values for a unit.
type UnitMetrics struct {
	CPU      float64
	MemoryGB float64
	Sessions int
}

// SetUnitSample records a resource sample for a unit.
func SetUnitSample(unitID int, cpu, memoryGB float64, sessions int) {
	label := strconv.Itoa(unitID)
	unitCPU.WithLabelValues(label).Set(cpu)
	unitMemory.WithLabelValues(label).Set(memoryGB)
	unitSessions.WithLabelValues(label).Set(float64(sessions))

	unitCacheMu.Lock()
	unitCache[unitID] = &UnitMetrics{CPU: cpu, MemoryGB: memoryGB, Sessions: sessions}
	unitCacheMu.Unlock()
}

// DeleteUnitMetrics removes all metrics for a unit.
func DeleteUnitMetrics(unitID int) {
	label := strconv.Itoa(unitID)
	unitCPU.DeleteLabelValues(label)
	unitMemory.DeleteLabelValues(label)
	unitSessions.DeleteLabelValues(label)

	unitCacheMu.Lock()
	delete(unitCache, unitID)
	unitCacheMu.Unlock()
}

// ResetUnitMetrics removes metrics for every unit.
func ResetUnitMetrics() {
	unitCPU.Reset()
	unitMemory.Reset()
	unitSessions.Reset()

	unitCacheMu.Lock()
	unitCache = make(map[int]*UnitMetrics)
	unitCacheMu.Unlock()
}

// GetUnitMetrics returns the last sample for a unit.
func GetUnitMetrics(unitID int) *UnitMetrics {
	unitCacheMu.RLock()
	defer unitCacheMu.RUnlock()
	if m, ok := unitCache[unitID]; ok {
		dup := *m
		return &dup
	}
	return nil
}
