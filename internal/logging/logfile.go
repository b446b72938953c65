package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath names a session log: <logsDir>/<app>.<yyyymmdd_hhmmss>.log.
func LogFilePath(logsDir, app string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", app, sessionStart.Format("20060102_150405")))
}

// OpenLogFile creates logsDir if needed and opens the session log for append.
func OpenLogFile(logsDir, app string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := LogFilePath(logsDir, app, sessionStart)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
