// Package monitor samples browser process resources and raises threshold alerts.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/metrics"
	"github.com/smazurov/browserpool/internal/registry"
)

const bytesPerGB = 1024 * 1024 * 1024

// Snapshot is a point-in-time resource reading for one browser unit.
type Snapshot struct {
	UnitID           int     `json:"-"`
	PID              int     `json:"-"`
	ID               string  `json:"Id"`
	CPU              float64 `json:"CPU"`
	Memory           float64 `json:"Memory"`
	SessionPoolCount int     `json:"SessionPoolCount"`
}

// DisplayID formats the unit id the way alerts and snapshots report it.
func DisplayID(unitID, pid int) string {
	return fmt.Sprintf("POOL_%d(PID: %d)", unitID, pid)
}

// Source lists live units. *registry.Registry satisfies it.
type Source interface {
	Get(unitID int) (registry.Entry, bool)
	List() []registry.Entry
}

type cpuReading struct {
	seconds float64
	at      time.Time
}

// Collector reads per-pid CPU and memory from procfs.
type Collector struct {
	source Source
	fs     procfs.FS
	fsErr  error
	logger logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[int]cpuReading // keyed by pid
}

// NewCollector opens the default procfs mount. If procfs is unavailable
// every sample is zero-filled and reports the mount error.
func NewCollector(source Source, logger logging.Logger) *Collector {
	if logger == nil {
		logger = logging.GetLogger("monitor")
	}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		logger.Warn("procfs unavailable, resource metrics disabled", "error", err)
		err = fmt.Errorf("open procfs: %w", err)
	}
	return &Collector{
		source: source,
		fs:     fs,
		fsErr:  err,
		logger: logger,
		now:    time.Now,
		last:   make(map[int]cpuReading),
	}
}

// Sample reads one unit. Unknown ids report false with no error.
func (c *Collector) Sample(ctx context.Context, unitID int) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}
	entry, ok := c.source.Get(unitID)
	if !ok {
		return Snapshot{}, false, nil
	}
	snap, err := c.read(entry)
	if err != nil {
		return snap, true, err
	}
	return snap, true, nil
}

// SampleAll reads every live unit in registry order. A unit whose process
// cannot be read is reported with zero CPU and memory.
func (c *Collector) SampleAll(ctx context.Context) []Snapshot {
	entries := c.source.List()
	out := make([]Snapshot, 0, len(entries))
	live := make(map[int]bool, len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		live[entry.PID] = true
		snap, err := c.read(entry)
		if err != nil {
			c.logger.Warn("Failed to sample browser process", "unit", entry.UnitID, "pid", entry.PID, "error", err)
		}
		out = append(out, snap)
	}

	c.mu.Lock()
	for pid := range c.last {
		if !live[pid] {
			delete(c.last, pid)
		}
	}
	c.mu.Unlock()

	return out
}

// read returns a zero-filled snapshot alongside any error.
func (c *Collector) read(entry registry.Entry) (Snapshot, error) {
	snap := Snapshot{
		UnitID:           entry.UnitID,
		PID:              entry.PID,
		ID:               DisplayID(entry.UnitID, entry.PID),
		SessionPoolCount: entry.SessionCount,
	}

	if c.fsErr != nil {
		return snap, c.fsErr
	}
	proc, err := c.fs.Proc(entry.PID)
	if err != nil {
		return snap, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return snap, err
	}

	now := c.now()
	cpuSeconds := stat.CPUTime()

	c.mu.Lock()
	prev, seen := c.last[entry.PID]
	c.last[entry.PID] = cpuReading{seconds: cpuSeconds, at: now}
	c.mu.Unlock()

	if !seen {
		start, err := stat.StartTime()
		if err != nil {
			return snap, err
		}
		prev = cpuReading{at: time.Unix(0, int64(start*float64(time.Second)))}
	}

	snap.CPU = cpuPercent(prev, cpuReading{seconds: cpuSeconds, at: now})
	snap.Memory = round2(float64(stat.ResidentMemory()) / bytesPerGB)

	metrics.SetUnitSample(entry.UnitID, snap.CPU, snap.Memory, snap.SessionPoolCount)
	return snap, nil
}

func cpuPercent(prev, cur cpuReading) float64 {
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return round2(math.Max(cur.seconds-prev.seconds, 0) / elapsed * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
