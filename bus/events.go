package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Subject layout for task resolution fan-out.
const (
	// ResolutionSubjectPrefix is the subject root for resolution events.
	// Per-task subjects append the task ID, e.g. "tasks.resolved.t-1".
	ResolutionSubjectPrefix = "tasks.resolved"

	// ResolutionSubjectAll matches resolutions for every task.
	ResolutionSubjectAll = ResolutionSubjectPrefix + ".*"
)

// ResolutionEvent is the payload published when a tracked task resolves.
// It carries the terminal observation so subscribers in other processes
// don't need to poll the service themselves.
type ResolutionEvent struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	StopReason string    `json:"stop_reason,omitempty"`
	Source     string    `json:"source"` // "poll" or "webhook"
	ResolvedAt time.Time `json:"resolved_at"`
	Message    string    `json:"message,omitempty"`
}

// ResolutionSubject returns the per-task subject for a resolution event.
func ResolutionSubject(taskID string) string {
	return ResolutionSubjectPrefix + "." + taskID
}

// PublishResolution publishes a resolution event on its per-task subject.
func PublishResolution(b MessageBus, ev *ResolutionEvent) error {
	if ev == nil || ev.TaskID == "" {
		return ErrInvalidSubject
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}
	return b.Publish(ResolutionSubject(ev.TaskID), data)
}

// DecodeResolution decodes a resolution event from a bus message.
func DecodeResolution(msg *Message) (*ResolutionEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if !strings.HasPrefix(msg.Subject, ResolutionSubjectPrefix+".") {
		return nil, fmt.Errorf("subject %q is not a resolution subject", msg.Subject)
	}
	var ev ResolutionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return nil, fmt.Errorf("decode resolution: %w", err)
	}
	return &ev, nil
}
