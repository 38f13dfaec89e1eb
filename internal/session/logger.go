// Package session records the lifecycle of a rollout run as an NDJSON
// event log, one file per run, for post-hoc debugging of long runs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger defines the interface for run event logging.
type Logger interface {
	Log(event Event) error
	Close() error
}

// JSONLogger writes events as newline-delimited JSON. Rollouts log
// concurrently and wall-clock timestamps can collide, so the logger stamps
// each line with a sequence number assigned under its mutex; sorting by seq
// reconstructs the exact write order of an interleaved run.
type JSONLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
	seq  int
}

// NewJSONLogger creates a logger that writes NDJSON to the given path.
// Parent directories are created automatically.
func NewJSONLogger(path string) (*JSONLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	return &JSONLogger{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Log stamps the event with the next sequence number and writes it as one
// JSON line.
func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event.Seq = l.seq
	if err := l.enc.Encode(event); err != nil {
		return err
	}
	l.seq++
	return nil
}

// Close flushes and closes the underlying file.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the file path of the session log.
func (l *JSONLogger) Path() string {
	return l.path
}

// NopLogger discards all events. Useful as a default when logging is disabled.
type NopLogger struct{}

// Log is a no-op.
func (NopLogger) Log(Event) error { return nil }

// Close is a no-op.
func (NopLogger) Close() error { return nil }

// DefaultLogPath returns a timestamped, spec-named log path inside dir, so
// logs from different specs can share a directory without colliding.
func DefaultLogPath(dir, specName string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(specName)), " ", "-")
	if name == "" {
		name = "run"
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, fmt.Sprintf("%s-%s-session.jsonl", name, ts))
}
