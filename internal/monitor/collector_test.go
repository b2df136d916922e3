package monitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/registry"
)

func newTestCollector(t *testing.T, reg *registry.Registry) *Collector {
	t.Helper()
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	return NewCollector(reg, logging.Discard())
}

func TestSampleUnknownUnit(t *testing.T) {
	c := newTestCollector(t, registry.New())

	snap, ok, err := c.Sample(context.Background(), 999)
	if err != nil || ok {
		t.Errorf("expected (false, nil), got (%v, %v) %+v", ok, err, snap)
	}
}

func TestSampleOwnProcess(t *testing.T) {
	reg := registry.New()
	reg.Register(1, os.Getpid())
	reg.AddSessions(1, 3)
	c := newTestCollector(t, reg)

	snap, ok, err := c.Sample(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("Sample failed: ok=%v err=%v", ok, err)
	}
	if snap.ID != DisplayID(1, os.Getpid()) {
		t.Errorf("unexpected id %q", snap.ID)
	}
	if snap.SessionPoolCount != 3 {
		t.Errorf("expected 3 sessions, got %d", snap.SessionPoolCount)
	}
	if snap.Memory <= 0 {
		t.Errorf("expected non-zero memory for the test process, got %v", snap.Memory)
	}
	if snap.CPU < 0 {
		t.Errorf("negative cpu: %v", snap.CPU)
	}
}

func TestSampleAllZeroFillsDeadProcess(t *testing.T) {
	reg := registry.New()
	reg.Register(1, os.Getpid())
	reg.Register(2, 1<<30) // beyond pid_max, never exists
	c := newTestCollector(t, reg)

	snaps := c.SampleAll(context.Background())
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].UnitID != 1 || snaps[1].UnitID != 2 {
		t.Errorf("snapshots not in registry order: %+v", snaps)
	}
	if snaps[1].CPU != 0 || snaps[1].Memory != 0 {
		t.Errorf("dead process should be zero-filled: %+v", snaps[1])
	}
	if snaps[1].ID != "POOL_2(PID: 1073741824)" {
		t.Errorf("unexpected id %q", snaps[1].ID)
	}
}

func TestSampleAllForgetsRemovedPIDs(t *testing.T) {
	reg := registry.New()
	reg.Register(1, os.Getpid())
	c := newTestCollector(t, reg)

	c.SampleAll(context.Background())
	c.mu.Lock()
	_, tracked := c.last[os.Getpid()]
	c.mu.Unlock()
	if !tracked {
		t.Fatal("expected pid to be tracked after sampling")
	}

	reg.Unregister(1)
	c.SampleAll(context.Background())
	c.mu.Lock()
	_, tracked = c.last[os.Getpid()]
	c.mu.Unlock()
	if tracked {
		t.Error("expected pid to be forgotten after unregister")
	}
}

func TestSecondSampleUsesDelta(t *testing.T) {
	reg := registry.New()
	reg.Register(1, os.Getpid())
	c := newTestCollector(t, reg)

	now := time.Now()
	c.now = func() time.Time { return now }
	if _, _, err := c.Sample(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// Same instant: zero elapsed time reports zero.
	snap, _, err := c.Sample(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CPU != 0 {
		t.Errorf("expected 0 cpu for zero elapsed time, got %v", snap.CPU)
	}
}
