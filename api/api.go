package api

import (
	"context"
	"time"
)

// TaskStatus represents the remote task's reported state.
type TaskStatus string

const (
	// StatusRunning indicates the agent is still working on the task.
	StatusRunning TaskStatus = "running"

	// StatusPending indicates the task is stopped waiting on something,
	// typically user input (see StopReason).
	StatusPending TaskStatus = "pending"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted TaskStatus = "completed"

	// StatusErrored indicates the task failed remotely.
	StatusErrored TaskStatus = "errored"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a terminal state.
// Note that a pending task with stop reason "ask" is also treated as
// terminal by the completion tracker, because it requires external action.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// StopReason explains why a task stopped.
type StopReason string

const (
	// StopFinish indicates the task ran to completion.
	StopFinish StopReason = "finish"

	// StopAsk indicates the task is waiting for user input.
	StopAsk StopReason = "ask"
)

// EventType identifies a webhook event kind.
type EventType string

const (
	// EventTaskCreated is delivered when a task is accepted by the service.
	EventTaskCreated EventType = "task_created"

	// EventTaskStopped is delivered when a task reaches a stopped state.
	EventTaskStopped EventType = "task_stopped"
)

// OutputAttachment is a file produced by a task.
type OutputAttachment struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// TaskDetail is the full task object returned by GET /v1/tasks/{id} and
// embedded in task_stopped webhook deliveries.
type TaskDetail struct {
	TaskID      string             `json:"task_id"`
	TaskTitle   string             `json:"task_title,omitempty"`
	TaskURL     string             `json:"task_url,omitempty"`
	Status      TaskStatus         `json:"status,omitempty"`
	Message     string             `json:"message,omitempty"`
	Attachments []OutputAttachment `json:"attachments,omitempty"`
	StopReason  StopReason         `json:"stop_reason,omitempty"`
}

// AwaitingInput returns true if the task stopped to ask for user input.
func (d *TaskDetail) AwaitingInput() bool {
	return d.StopReason == StopAsk
}

// Clone returns a deep copy of the detail.
func (d *TaskDetail) Clone() *TaskDetail {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Attachments != nil {
		clone.Attachments = make([]OutputAttachment, len(d.Attachments))
		copy(clone.Attachments, d.Attachments)
	}
	return &clone
}

// Attachment is the wire form of a task attachment. Exactly one of the
// three shapes is populated: file_id, url, or inline base64 data.
type Attachment struct {
	FileID   string `json:"file_id,omitempty"`
	URL      string `json:"url,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// CreateTaskRequest is the body for POST /v1/tasks. Field names follow the
// service's camelCase convention for request fields.
type CreateTaskRequest struct {
	Prompt       string       `json:"prompt"`
	AgentProfile string       `json:"agentProfile,omitempty"`
	TaskMode     string       `json:"taskMode,omitempty"`
	TaskID       string       `json:"taskId,omitempty"` // follow-up turn on an existing task
	Attachments  []Attachment `json:"attachments,omitempty"`
	Connectors   []string     `json:"connectors,omitempty"`
}

// CreateTaskResponse is the body returned by POST /v1/tasks.
type CreateTaskResponse struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title,omitempty"`
	TaskURL   string `json:"task_url,omitempty"`
	ShareURL  string `json:"share_url,omitempty"`
}

// FileRecord is the body returned by POST /v1/files. The upload URL is
// presigned and single-use; content must be PUT before UploadExpiresAt.
type FileRecord struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	Status          string    `json:"status,omitempty"`
	UploadURL       string    `json:"upload_url"`
	UploadExpiresAt time.Time `json:"upload_expires_at"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// WebhookRegistration is the body returned by POST /v1/webhooks.
type WebhookRegistration struct {
	WebhookID string `json:"webhook_id"`
	URL       string `json:"url"`
}

// WebhookEvent is the body of an inbound webhook delivery. The same logical
// event may be redelivered with the same EventID; consumers must deduplicate.
type WebhookEvent struct {
	EventID    string      `json:"event_id"`
	EventType  EventType   `json:"event_type"`
	TaskDetail *TaskDetail `json:"task_detail"`
}

// TaskID returns the task the event refers to, or empty if absent.
func (e *WebhookEvent) TaskID() string {
	if e == nil || e.TaskDetail == nil {
		return ""
	}
	return e.TaskDetail.TaskID
}

// Transport is the pluggable interface to the remote task service. Tests
// substitute a fake; production uses HTTPTransport.
type Transport interface {
	// CreateFile creates a file record and returns a presigned upload URL.
	CreateFile(ctx context.Context, filename string) (*FileRecord, error)

	// UploadContent PUTs raw bytes to a presigned upload URL.
	UploadContent(ctx context.Context, uploadURL string, content []byte) error

	// CreateTask submits a new task (or a follow-up turn).
	CreateTask(ctx context.Context, req *CreateTaskRequest) (*CreateTaskResponse, error)

	// GetTask fetches the current task detail.
	GetTask(ctx context.Context, taskID string) (*TaskDetail, error)

	// RegisterWebhook registers a delivery URL for task events.
	RegisterWebhook(ctx context.Context, url string) (*WebhookRegistration, error)

	// DeleteWebhook removes a webhook registration.
	DeleteWebhook(ctx context.Context, webhookID string) error
}
