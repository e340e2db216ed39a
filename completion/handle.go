package completion

import (
	"context"
	"time"

	"github.com/vinayprograms/taskwatch/api"
)

// Source identifies which observation path resolved a task.
type Source string

const (
	// SourcePoll means a status poll saw the terminal state first.
	SourcePoll Source = "poll"

	// SourceWebhook means a webhook delivery saw it first.
	SourceWebhook Source = "webhook"
)

// Resolution is the terminal outcome of a tracked task. Either Detail is
// set (the task stopped) or Err is set (tracking failed), never both.
type Resolution struct {
	TaskID     string
	Detail     *api.TaskDetail
	Source     Source
	Err        error
	ResolvedAt time.Time
}

// Callback is invoked exactly once when a tracked task resolves.
type Callback func(*Resolution)

// Handle is the caller's view of a tracked task. It resolves at most
// once; after Done() is closed, Resolution() never changes.
type Handle struct {
	taskID     string
	done       chan struct{}
	resolution *Resolution // written once, before done closes
}

func newHandle(taskID string) *Handle {
	return &Handle{
		taskID: taskID,
		done:   make(chan struct{}),
	}
}

// TaskID returns the tracked task's ID.
func (h *Handle) TaskID() string {
	return h.taskID
}

// Done returns a channel closed when the task resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Resolution returns the outcome, or nil if the task has not resolved.
func (h *Handle) Resolution() *Resolution {
	select {
	case <-h.done:
		return h.resolution
	default:
		return nil
	}
}

// Wait blocks until the task resolves or the context is done.
func (h *Handle) Wait(ctx context.Context) (*Resolution, error) {
	select {
	case <-h.done:
		return h.resolution, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete publishes the resolution and closes the done channel.
// Must be called at most once; the tracker's record lock guarantees it.
func (h *Handle) complete(res *Resolution) {
	h.resolution = res
	close(h.done)
}
