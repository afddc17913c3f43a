// Package logging writes structured JSONL events for the turn pipeline.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Category represents the pipeline stage generating the log.
type Category string

const (
	CategoryConversation Category = "conversation"
	CategoryModel        Category = "model"
	CategoryEnvelope     Category = "envelope"
	CategoryCandidate    Category = "candidate"
	CategoryCritic       Category = "critic"
	CategoryRanking      Category = "ranking"
	CategoryApproval     Category = "approval"
	CategoryPublish      Category = "publish"
	CategoryMonitor      Category = "monitor"
	CategoryMemory       Category = "memory"
)

// Event represents a structured log event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	TurnID    string         `json:"turn_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger writes structured events as JSON lines. The zero value discards
// everything; a nil *Logger is safe to call.
type Logger struct {
	sessionID string
	out       io.Writer
	errOut    io.Writer
	closers   []io.Closer
	mu        sync.Mutex
	minLevel  Level
}

// NewLogger creates a file-backed logger under baseDir: one JSONL stream per
// session plus a shared error stream.
func NewLogger(baseDir, sessionID string) (*Logger, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	sessionFile, err := os.OpenFile(
		filepath.Join(sessionsDir, sessionID+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		sessionFile.Close()
		return nil, fmt.Errorf("opening error log: %w", err)
	}

	return &Logger{
		sessionID: sessionID,
		out:       sessionFile,
		errOut:    errorFile,
		closers:   []io.Closer{sessionFile, errorFile},
		minLevel:  LevelInfo,
	}, nil
}

// NewWriterLogger creates a logger that writes all events to w. Used by tests
// and the CLI.
func NewWriterLogger(w io.Writer, sessionID string) *Logger {
	return &Logger{sessionID: sessionID, out: w, errOut: w, minLevel: LevelDebug}
}

// SetMinLevel sets the minimum level an event needs to be written.
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Log writes one event. Events below the minimum level are dropped; error
// events are duplicated to the error stream.
func (l *Logger) Log(level Level, category Category, eventType, message string, details map[string]any) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	event := Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		EventType: eventType,
		SessionID: l.sessionID,
		Message:   message,
		Details:   details,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')
	l.out.Write(line)
	if level == LevelError && l.errOut != nil && l.errOut != l.out {
		l.errOut.Write(line)
	}
}

// Debug logs a debug-level event.
func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelDebug, category, eventType, message, details)
}

// Info logs an info-level event.
func (l *Logger) Info(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelInfo, category, eventType, message, details)
}

// Warn logs a warn-level event.
func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelWarn, category, eventType, message, details)
}

// Error logs an error-level event.
func (l *Logger) Error(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelError, category, eventType, message, details)
}

// Close flushes and closes any underlying files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}
