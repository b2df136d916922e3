package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitStatus is the subset of unit properties the API reports.
type UnitStatus struct {
	ActiveState string
	SubState    string
	MainPID     uint32
}

// Manager queries and restarts systemd units over D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the user bus, or to the system bus when system is
// set.
func NewManager(ctx context.Context, system bool) (*Manager, error) {
	connect := dbus.NewUserConnectionContext
	if system {
		connect = dbus.NewSystemConnectionContext
	}
	conn, err := connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// Status reads the unit's active state, sub state and main pid.
func (m *Manager) Status(ctx context.Context, unit string) (UnitStatus, error) {
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return UnitStatus{}, err
	}
	return statusFromProperties(props), nil
}

func statusFromProperties(props map[string]any) UnitStatus {
	var st UnitStatus
	st.ActiveState, _ = props["ActiveState"].(string)
	st.SubState, _ = props["SubState"].(string)
	st.MainPID, _ = props["MainPID"].(uint32)
	return st
}

// Restart queues a restart job and returns its id without waiting for it.
// The running process sees SIGTERM and goes through its normal shutdown.
func (m *Manager) Restart(ctx context.Context, unit string) (int, error) {
	return m.conn.RestartUnitContext(ctx, unit, "replace", nil)
}

// Close closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
