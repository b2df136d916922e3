package process

import "time"

// State represents the current state of a supervised process.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not started
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Stop in progress
	StateExited   State = "exited"   // Exited or killed
	StateError    State = "error"    // Failed to start
)

// Info contains information about a supervised process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitCode  int
	LastError error
}
