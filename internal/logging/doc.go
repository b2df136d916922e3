// Package logging provides structured logging with per-module log levels.
//
// Every package asks for its own logger:
//
//	logger := logging.GetLogger("pool")
//	logger.Info("Browser unit created", "unit_id", id, "pid", pid)
//
// Loggers can be requested before Initialize runs. They start at info level
// and pick up the configured level and format once Initialize is called:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"monitor": "debug",
//			"api":     "warn",
//		},
//	})
//
// Output goes to stdout when it is connected to a terminal, pipe, socket or
// file, and to the systemd journal when journald is running. With both
// available the records are fanned out through a MultiHandler.
//
// Journal records carry SYSLOG_IDENTIFIER=browserpool and one field per
// attribute:
//
//	journalctl -t browserpool MODULE=monitor
//	journalctl -t browserpool UNIT_ID=2 -p warning
package logging
