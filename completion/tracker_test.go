package completion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/errors"
)

func newTestTracker(t *testing.T, opts ...TrackerOption) *Tracker {
	t.Helper()
	tr := NewTracker(opts...)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func stoppedEvent(eventID, taskID string, status api.TaskStatus, reason api.StopReason) *api.WebhookEvent {
	return &api.WebhookEvent{
		EventID:   eventID,
		EventType: api.EventTaskStopped,
		TaskDetail: &api.TaskDetail{
			TaskID:     taskID,
			Status:     status,
			StopReason: reason,
		},
	}
}

func createdEvent(eventID, taskID, title string) *api.WebhookEvent {
	return &api.WebhookEvent{
		EventID:   eventID,
		EventType: api.EventTaskCreated,
		TaskDetail: &api.TaskDetail{
			TaskID:    taskID,
			TaskTitle: title,
			Status:    api.StatusRunning,
		},
	}
}

// ============================================================================
// Track
// ============================================================================

func TestTracker_Track(t *testing.T) {
	tr := newTestTracker(t)

	handle, err := tr.Track("t1", nil)
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if handle.TaskID() != "t1" {
		t.Errorf("task ID = %q, want t1", handle.TaskID())
	}
	if !tr.Tracked("t1") {
		t.Error("task should be tracked")
	}
	if handle.Resolution() != nil {
		t.Error("fresh handle should not be resolved")
	}
}

func TestTracker_Track_EmptyID(t *testing.T) {
	tr := newTestTracker(t)

	if _, err := tr.Track("", nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestTracker_Track_Conflict(t *testing.T) {
	tr := newTestTracker(t)

	tr.Track("t1", nil)
	_, err := tr.Track("t1", nil)
	if !errors.Is(err, errors.ErrCodeConflict) {
		t.Errorf("expected CONFLICT for double track, got %v", err)
	}
}

func TestTracker_Track_ReplacesResolved(t *testing.T) {
	tr := newTestTracker(t)

	tr.Track("t1", nil)
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})

	// A resolved record can be re-tracked (follow-up turn on the same task)
	handle, err := tr.Track("t1", nil)
	if err != nil {
		t.Fatalf("re-track after resolution error: %v", err)
	}
	if handle.Resolution() != nil {
		t.Error("new handle should start unresolved")
	}
}

// ============================================================================
// Idempotent resolution
// ============================================================================

func TestTracker_ResolutionExactlyOnce(t *testing.T) {
	tr := newTestTracker(t)

	var calls atomic.Int64
	handle, _ := tr.Track("t1", func(res *Resolution) {
		calls.Add(1)
	})

	detail := &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted, StopReason: api.StopFinish}

	// Terminal observations from both feeders, duplicated
	tr.ObservePoll("t1", detail)
	tr.ObservePoll("t1", detail)
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish))
	tr.ObserveWebhook(stoppedEvent("e2", "t1", api.StatusCompleted, api.StopFinish))

	<-handle.Done()
	if got := calls.Load(); got != 1 {
		t.Errorf("callback fired %d times, want 1", got)
	}

	res := handle.Resolution()
	if res == nil || res.Detail == nil {
		t.Fatal("expected resolution with detail")
	}
	if res.Detail.Status != api.StatusCompleted {
		t.Errorf("status = %v, want completed", res.Detail.Status)
	}
	if res.Source != SourcePoll {
		t.Errorf("source = %v, want poll (first observation)", res.Source)
	}
}

func TestTracker_ResolutionExactlyOnce_Concurrent(t *testing.T) {
	tr := newTestTracker(t)

	var calls atomic.Int64
	handle, _ := tr.Track("t1", func(res *Resolution) {
		calls.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})
			} else {
				tr.ObserveWebhook(stoppedEvent("e-conc", "t1", api.StatusCompleted, api.StopFinish))
			}
		}(i)
	}
	wg.Wait()

	<-handle.Done()
	if got := calls.Load(); got != 1 {
		t.Errorf("callback fired %d times under concurrency, want 1", got)
	}
}

// ============================================================================
// First observation wins
// ============================================================================

func TestTracker_FirstWins_PollThenWebhook(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	tr.ObservePoll("t1", &api.TaskDetail{
		TaskID: "t1", Status: api.StatusCompleted, Message: "from poll",
	})
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusErrored, api.StopFinish))

	res := handle.Resolution()
	if res.Source != SourcePoll {
		t.Errorf("source = %v, want poll", res.Source)
	}
	if res.Detail.Status != api.StatusCompleted || res.Detail.Message != "from poll" {
		t.Errorf("detail = %+v, want the poll's observation", res.Detail)
	}
}

func TestTracker_FirstWins_WebhookThenPoll(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	ev := stoppedEvent("e1", "t1", api.StatusErrored, api.StopFinish)
	ev.TaskDetail.Message = "from webhook"
	tr.ObserveWebhook(ev)
	tr.ObservePoll("t1", &api.TaskDetail{
		TaskID: "t1", Status: api.StatusCompleted, Message: "from poll",
	})

	res := handle.Resolution()
	if res.Source != SourceWebhook {
		t.Errorf("source = %v, want webhook", res.Source)
	}
	if res.Detail.Status != api.StatusErrored || res.Detail.Message != "from webhook" {
		t.Errorf("detail = %+v, want the webhook's observation", res.Detail)
	}
}

func TestTracker_ResolvingDetailOverridesEnrichment(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	// Non-terminal poll enriches the record
	tr.ObservePoll("t1", &api.TaskDetail{
		TaskID: "t1", TaskTitle: "summarize", Status: api.StatusRunning,
	})
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish))

	res := handle.Resolution()
	if res.Detail.Status != api.StatusCompleted {
		t.Errorf("status = %v, want completed (terminal observation wins)", res.Detail.Status)
	}
	if res.Detail.TaskTitle != "summarize" {
		t.Errorf("title = %q, earlier enrichment should fill gaps", res.Detail.TaskTitle)
	}
}

// ============================================================================
// Pending / ask semantics
// ============================================================================

func TestTracker_PendingAskIsTerminal(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	tr.ObservePoll("t1", &api.TaskDetail{
		TaskID: "t1", Status: api.StatusPending, StopReason: api.StopAsk,
	})

	res := handle.Resolution()
	if res == nil {
		t.Fatal("pending with stop reason ask should resolve")
	}
	if !res.Detail.AwaitingInput() {
		t.Error("resolution should report awaiting input")
	}
}

func TestTracker_PendingWithoutAskIsNoop(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusPending})
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusRunning})

	if handle.Resolution() != nil {
		t.Error("non-terminal statuses must not resolve")
	}
}

// ============================================================================
// Event dedup
// ============================================================================

func TestTracker_EventDedup(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	// The same created event twice only enriches once; the same stopped
	// event twice resolves once.
	tr.ObserveWebhook(createdEvent("e0", "t1", "summarize"))
	tr.ObserveWebhook(createdEvent("e0", "t1", "DIFFERENT TITLE"))

	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish))
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusErrored, api.StopFinish))

	res := handle.Resolution()
	if res == nil {
		t.Fatal("expected resolution")
	}
	if res.Detail.Status != api.StatusCompleted {
		t.Errorf("status = %v, duplicate event must not re-trigger resolution", res.Detail.Status)
	}
	if res.Detail.TaskTitle != "summarize" {
		t.Errorf("title = %q, duplicate created event must be discarded", res.Detail.TaskTitle)
	}
}

func TestTracker_CreatedEventDoesNotResolve(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	tr.ObserveWebhook(createdEvent("e0", "t1", "summarize"))

	if handle.Resolution() != nil {
		t.Error("task_created must not resolve")
	}
}

// ============================================================================
// Unknown task
// ============================================================================

func TestTracker_UnknownTask(t *testing.T) {
	tr := newTestTracker(t)

	err := tr.ObserveWebhook(stoppedEvent("e1", "ghost", api.StatusCompleted, api.StopFinish))
	if !errors.Is(err, errors.ErrCodeUnknownTask) {
		t.Errorf("expected UNKNOWN_TASK, got %v", err)
	}

	if err := tr.ObservePoll("ghost", &api.TaskDetail{TaskID: "ghost"}); !errors.Is(err, errors.ErrCodeUnknownTask) {
		t.Errorf("expected UNKNOWN_TASK, got %v", err)
	}
}

func TestTracker_MalformedEvent(t *testing.T) {
	tr := newTestTracker(t)

	if err := tr.ObserveWebhook(nil); !errors.Is(err, errors.ErrCodeInvalidWebhook) {
		t.Errorf("expected INVALID_WEBHOOK for nil event, got %v", err)
	}
	if err := tr.ObserveWebhook(&api.WebhookEvent{EventID: "e1"}); !errors.Is(err, errors.ErrCodeInvalidWebhook) {
		t.Errorf("expected INVALID_WEBHOOK for missing detail, got %v", err)
	}
}

// ============================================================================
// Replay of early events
// ============================================================================

type fakeReplay struct {
	mu     sync.Mutex
	events map[string][]*api.WebhookEvent
}

func (f *fakeReplay) PendingEvents(taskID string) []*api.WebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.events[taskID]
	delete(f.events, taskID)
	return evs
}

func TestTracker_ReplayEarlyEvents(t *testing.T) {
	tr := newTestTracker(t)

	replay := &fakeReplay{events: map[string][]*api.WebhookEvent{
		"t1": {
			createdEvent("e0", "t1", "summarize"),
			stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish),
		},
	}}
	tr.AddReplaySource(replay)

	// The stopped event arrived before Track; the handle resolves immediately
	handle, err := tr.Track("t1", nil)
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}

	res := handle.Resolution()
	if res == nil {
		t.Fatal("replayed terminal event should have resolved the handle")
	}
	if res.Detail.Status != api.StatusCompleted || res.Detail.TaskTitle != "summarize" {
		t.Errorf("detail = %+v", res.Detail)
	}
}

// ============================================================================
// Fail and Untrack
// ============================================================================

func TestTracker_Fail(t *testing.T) {
	tr := newTestTracker(t)

	var got *Resolution
	handle, _ := tr.Track("t1", func(res *Resolution) { got = res })

	cause := errors.New(errors.ErrCodeCanceled, "caller gave up")
	tr.Fail("t1", cause)

	<-handle.Done()
	if got == nil || got.Err == nil {
		t.Fatal("expected error resolution")
	}
	if !errors.Is(got.Err, errors.ErrCodeCanceled) {
		t.Errorf("err = %v", got.Err)
	}

	// Late terminal observation is a no-op
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})
	if handle.Resolution().Err == nil {
		t.Error("resolution must not change after Fail")
	}
}

func TestTracker_Untrack(t *testing.T) {
	tr := newTestTracker(t)

	handle, _ := tr.Track("t1", nil)
	tr.Untrack("t1")

	if tr.Tracked("t1") {
		t.Error("task should be untracked")
	}
	err := tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})
	if !errors.Is(err, errors.ErrCodeUnknownTask) {
		t.Errorf("expected UNKNOWN_TASK after untrack, got %v", err)
	}
	if handle.Resolution() != nil {
		t.Error("untracked handle must never resolve")
	}
}

// ============================================================================
// Retention sweep
// ============================================================================

func TestTracker_SweepDropsOldResolved(t *testing.T) {
	current := time.Now()
	tr := newTestTracker(t,
		WithRetention(time.Minute),
		WithClock(func() time.Time { return current }))

	tr.Track("t1", nil)
	tr.Track("t2", nil)
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})

	// Within retention: resolved record stays
	tr.sweep()
	if !tr.Tracked("t1") {
		t.Error("resolved record inside retention should stay")
	}

	current = current.Add(2 * time.Minute)
	tr.sweep()

	if tr.Tracked("t1") {
		t.Error("resolved record past retention should be swept")
	}
	if !tr.Tracked("t2") {
		t.Error("pending record must never be swept")
	}
}

// ============================================================================
// Handle
// ============================================================================

func TestHandle_Wait(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})
	}()

	res, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if res.Detail.Status != api.StatusCompleted {
		t.Errorf("status = %v", res.Detail.Status)
	}
}

func TestHandle_Wait_ContextCanceled(t *testing.T) {
	tr := newTestTracker(t)
	handle, _ := tr.Track("t1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := handle.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	// The task stays tracked; a late observation still resolves it
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})
	if handle.Resolution() == nil {
		t.Error("late observation should still resolve the handle")
	}
}

// ============================================================================
// End-to-end interleaving from the service's documented flow
// ============================================================================

func TestTracker_DuplicatedOutOfOrderDelivery(t *testing.T) {
	tr := newTestTracker(t)

	var calls atomic.Int64
	handle, _ := tr.Track("t1", func(res *Resolution) { calls.Add(1) })

	// Stopped arrives before created, both duplicated, plus a late poll
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish))
	tr.ObserveWebhook(createdEvent("e0", "t1", "summarize"))
	tr.ObserveWebhook(stoppedEvent("e1", "t1", api.StatusCompleted, api.StopFinish))
	tr.ObserveWebhook(createdEvent("e0", "t1", "summarize"))
	tr.ObservePoll("t1", &api.TaskDetail{TaskID: "t1", Status: api.StatusCompleted})

	<-handle.Done()
	if calls.Load() != 1 {
		t.Errorf("callback fired %d times, want 1", calls.Load())
	}
	res := handle.Resolution()
	if res.Source != SourceWebhook || res.Detail.Status != api.StatusCompleted {
		t.Errorf("resolution = %+v", res)
	}
}
