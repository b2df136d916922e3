// Package systemd integrates with the service manager: readiness and
// stopping notifications over sd_notify, and unit control over D-Bus.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/browserpool/internal/logging"
)

// Notifier sends sd_notify state updates. Outside systemd every call is a
// no-op.
type Notifier struct {
	logger logging.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{logger: logger}
}

// Ready reports READY=1.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports STOPPING=1.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
