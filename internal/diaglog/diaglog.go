// Package diaglog is the operator-facing diagnostic log: a single
// append-only file with size-bounded rotation, separate from the structured
// process log. It exists so a site operator can read (and share) a plain
// text trace of upload activity without shell access to the host.
package diaglog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ignite/gads-reporter/internal/pkg/logger"
)

const (
	// MaxSizeBytes is the file size past which the next write trims the log.
	MaxSizeBytes = 500_000
	// TrimTargetBytes is the approximate size kept after a trim.
	TrimTargetBytes = 256_000
)

// EnabledFunc reports whether diagnostic logging is currently on.
// It is consulted on every write so toggling the setting takes effect
// immediately, with no process restart.
type EnabledFunc func() bool

// ArchiveFunc receives the full log contents just before a trim discards
// the head. Optional; used for S3 archival.
type ArchiveFunc func(snapshot []byte)

// Logger appends timestamped lines to a single file.
type Logger struct {
	mu      sync.Mutex
	path    string
	enabled EnabledFunc
	archive ArchiveFunc
}

// New creates a diagnostic logger writing to path. If enabled is nil the
// logger is always on.
func New(path string, enabled EnabledFunc) *Logger {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Logger{path: path, enabled: enabled}
}

// SetArchiver registers a hook invoked with the log contents before each trim.
func (l *Logger) SetArchiver(fn ArchiveFunc) {
	l.mu.Lock()
	l.archive = fn
	l.mu.Unlock()
}

// Info appends an INFO line.
func (l *Logger) Info(msg string) { l.write("INFO", msg) }

// Error appends an ERROR line.
func (l *Logger) Error(msg string) { l.write("ERROR", msg) }

func (l *Logger) write(level, msg string) {
	if !l.enabled() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		logger.Warn("diaglog: cannot create log directory", "error", err)
		return
	}

	if err := l.trimLocked(); err != nil {
		logger.Warn("diaglog: trim failed", "error", err)
		// Keep appending; an oversized log beats a lost entry.
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("diaglog: cannot open log file", "error", err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s %s\n",
		time.Now().Format("2006-01-02T15:04:05-07:00"), level, msg)
	if _, err := f.WriteString(line); err != nil {
		logger.Warn("diaglog: write failed", "error", err)
	}
}

// trimLocked keeps only the tail of the file once it exceeds MaxSizeBytes,
// advancing past the first newline in the kept tail so no partial line
// remains at the head. Caller holds l.mu.
func (l *Logger) trimLocked() error {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= MaxSizeBytes {
		return nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}

	if l.archive != nil {
		l.archive(data)
	}

	tail := data
	if len(tail) > TrimTargetBytes {
		tail = tail[len(tail)-TrimTargetBytes:]
	}
	// Cut at a line boundary: drop everything up to and including the
	// first newline of the kept tail.
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}

	return os.WriteFile(l.path, tail, 0o644)
}

// Mask redacts a secret value for inclusion in log lines, keeping only the
// last 4 characters. Empty input stays empty.
func Mask(value string) string {
	return logger.RedactSecret(value)
}

// Exists reports whether the log file is present.
func (l *Logger) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Contents returns the full log file contents. A missing file reads as empty.
func (l *Logger) Contents() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Clear removes the log file. Clearing a missing file is a no-op.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }
