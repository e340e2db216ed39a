// Package logging provides real-time log output for task lifecycle events.
// Log lines are for monitoring only; task resolutions are the source of
// truth and are surfaced through completion handles, not parsed from logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Task lifecycle logging methods ---
// Convenience wrappers used by the tracker, dispatcher and client so the
// same event always logs with the same field names.

// TaskCreated logs acceptance of a new task by the remote service.
func (l *Logger) TaskCreated(taskID, title string) {
	l.Info("task_created", map[string]interface{}{
		"task_id": taskID,
		"title":   title,
	})
}

// TaskResolved logs a task reaching its terminal observation.
func (l *Logger) TaskResolved(taskID, status, source string, waited time.Duration) {
	l.Info("task_resolved", map[string]interface{}{
		"task_id": taskID,
		"status":  status,
		"source":  source,
		"waited":  waited.String(),
	})
}

// PollObserved logs the outcome of a single status poll.
func (l *Logger) PollObserved(taskID, status string, attempt int) {
	l.Debug("poll_observed", map[string]interface{}{
		"task_id": taskID,
		"status":  status,
		"attempt": attempt,
	})
}

// WebhookReceived logs an accepted inbound webhook delivery.
func (l *Logger) WebhookReceived(eventID, eventType, taskID string) {
	l.Debug("webhook_received", map[string]interface{}{
		"event_id":   eventID,
		"event_type": eventType,
		"task_id":    taskID,
	})
}

// WebhookDuplicate logs a dropped duplicate delivery.
func (l *Logger) WebhookDuplicate(eventID, taskID string) {
	l.Debug("webhook_duplicate", map[string]interface{}{
		"event_id": eventID,
		"task_id":  taskID,
	})
}

// WebhookInvalid logs a malformed delivery that was acked and discarded.
func (l *Logger) WebhookInvalid(reason string) {
	l.Warn("webhook_invalid", map[string]interface{}{
		"reason": reason,
	})
}

// UnknownTaskEvent logs an event for a task no tracker has registered.
func (l *Logger) UnknownTaskEvent(eventID, taskID string) {
	l.Warn("unknown_task_event", map[string]interface{}{
		"event_id": eventID,
		"task_id":  taskID,
	})
}

// RetryAttempt logs a retry of a failed call.
func (l *Logger) RetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	fields := map[string]interface{}{
		"operation": operation,
		"attempt":   attempt,
		"delay":     delay.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Warn("retry_attempt", fields)
}

// UploadStart logs the beginning of a file content upload.
func (l *Logger) UploadStart(fileID, filename string, size int) {
	l.Debug("upload_start", map[string]interface{}{
		"file_id":  fileID,
		"filename": filename,
		"bytes":    size,
	})
}

// UploadComplete logs the outcome of a file content upload.
func (l *Logger) UploadComplete(fileID string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"file_id":  fileID,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("upload_failed", fields)
	} else {
		l.Debug("upload_complete", fields)
	}
}
