package browser

import (
	"strings"
	"sync"
)

const devToolsPrefix = "DevTools listening on "

// ParseChromeLogLevel extracts the level from Chromium's stderr log format:
//
//	[pid:tid:MMDD/HHMMSS.micros:LEVEL:file.cc(line)] message
func ParseChromeLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "debug", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "debug", line
	}

	fields := strings.Split(line[1:end], ":")
	if len(fields) < 4 {
		return "debug", line
	}

	msg = line[end+2:]
	switch fields[3] {
	case "FATAL":
		return "fatal", msg
	case "ERROR":
		return "error", msg
	case "WARNING":
		return "warning", msg
	case "INFO":
		return "info", msg
	}
	return "debug", msg
}

// endpointWatcher is a process.OutputHandler that captures the DevTools
// websocket URL printed at startup.
type endpointWatcher struct {
	once     sync.Once
	endpoint chan string
}

func newEndpointWatcher() *endpointWatcher {
	return &endpointWatcher{endpoint: make(chan string, 1)}
}

func (w *endpointWatcher) HandleLine(source, line string) {
	if source != "stderr" {
		return
	}
	url, ok := strings.CutPrefix(strings.TrimSpace(line), devToolsPrefix)
	if !ok || !strings.HasPrefix(url, "ws://") {
		return
	}
	w.once.Do(func() {
		w.endpoint <- url
	})
}
