package events

// Event type constants for kelindar/event.
const (
	TypeUnitCreated uint32 = iota + 1
	TypeUnitDestroyed
	TypeAlert
	TypePoolStateChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Alert levels.
const (
	LevelWarn   = "warn"
	LevelDanger = "danger"
)

// Alert metrics.
const (
	MetricCPU    = "cpu"
	MetricMemory = "memory"
)

// UnitCreatedEvent is published after a browser unit is launched and registered.
type UnitCreatedEvent struct {
	UnitID    int    `json:"unit_id" example:"1" doc:"Browser unit id"`
	PID       int    `json:"pid" example:"4242" doc:"Browser process id"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitCreatedEvent.
func (e UnitCreatedEvent) Type() uint32 { return TypeUnitCreated }

// UnitDestroyedEvent is published after a browser unit is closed and unregistered.
type UnitDestroyedEvent struct {
	UnitID    int    `json:"unit_id" example:"1" doc:"Browser unit id"`
	PID       int    `json:"pid" example:"4242" doc:"Browser process id"`
	Error     string `json:"error,omitempty" doc:"Close error, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitDestroyedEvent.
func (e UnitDestroyedEvent) Type() uint32 { return TypeUnitDestroyed }

// AlertEvent is published by the threshold watcher when a unit crosses a
// warn or break threshold.
type AlertEvent struct {
	Level     string  `json:"level" example:"warn" enum:"warn,danger" doc:"Alert severity"`
	Metric    string  `json:"metric" example:"cpu" enum:"cpu,memory" doc:"Metric that crossed the threshold"`
	ID        string  `json:"id" example:"POOL_1(PID: 4242)" doc:"Unit display id"`
	UnitID    int     `json:"unit_id" example:"1" doc:"Browser unit id"`
	Value     float64 `json:"value" example:"91.5" doc:"Observed value (percent or GB)"`
	Threshold float64 `json:"threshold" example:"80" doc:"Threshold that was crossed"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AlertEvent.
func (e AlertEvent) Type() uint32 { return TypeAlert }

// PoolStateChangedEvent is published on boot, terminate and reboot.
type PoolStateChangedEvent struct {
	State     string `json:"state" example:"booted" doc:"New pool manager state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PoolStateChangedEvent.
func (e PoolStateChangedEvent) Type() uint32 { return TypePoolStateChanged }
