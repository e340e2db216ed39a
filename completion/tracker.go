package completion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/logging"
)

// Default tracker parameters.
const (
	// DefaultRetention is how long a resolved record stays registered so
	// late duplicate deliveries are recognized instead of reported as
	// unknown tasks.
	DefaultRetention = time.Hour

	// DefaultSweepInterval is how often resolved records past retention
	// are removed.
	DefaultSweepInterval = 10 * time.Minute
)

// ReplaySource supplies webhook events that arrived before their task was
// tracked. The tracker consults every source when Track registers a task,
// closing the race between task creation and the first delivery.
type ReplaySource interface {
	// PendingEvents returns (and drops) cached events for a task.
	PendingEvents(taskID string) []*api.WebhookEvent
}

// record holds per-task tracking state. Its mutex serializes all
// observations for the task, making resolution exactly-once.
type record struct {
	mu         sync.Mutex
	taskID     string
	detail     *api.TaskDetail
	seenEvents map[string]struct{}
	handle     *Handle
	callback   Callback
	resolved   bool
	resolvedAt time.Time
	registered time.Time
}

// Tracker correlates observations from the poll and webhook paths and
// resolves each tracked task exactly once.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
	closed  atomic.Bool

	replayMu sync.RWMutex
	replays  []ReplaySource

	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *logging.Logger

	sweepTicker *time.Ticker
	done        chan struct{}
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithRetention overrides how long resolved records stay registered.
func WithRetention(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithSweepInterval overrides the resolved-record sweep cadence.
func WithSweepInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.sweepInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates a Tracker and starts its retention sweep.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		records:       make(map[string]*record),
		retention:     DefaultRetention,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        logging.New().WithComponent("tracker"),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.sweepTicker = time.NewTicker(t.sweepInterval)
	go t.sweepLoop()
	return t
}

// AddReplaySource registers a source of early-arrival events.
func (t *Tracker) AddReplaySource(src ReplaySource) {
	if src == nil {
		return
	}
	t.replayMu.Lock()
	t.replays = append(t.replays, src)
	t.replayMu.Unlock()
}

// Track registers a task and returns its handle. The callback, if
// non-nil, fires exactly once on resolution. Tracking an already tracked,
// unresolved task fails with CONFLICT. Any events that arrived before the
// task was tracked are replayed immediately, so the handle may already be
// resolved when Track returns.
func (t *Tracker) Track(taskID string, cb Callback) (*Handle, error) {
	if taskID == "" {
		return nil, errors.InvalidInput("task ID must not be empty")
	}
	if t.closed.Load() {
		return nil, errors.Internal("tracker closed")
	}

	rec := &record{
		taskID:     taskID,
		seenEvents: make(map[string]struct{}),
		handle:     newHandle(taskID),
		callback:   cb,
		registered: t.now(),
	}

	t.mu.Lock()
	if existing, ok := t.records[taskID]; ok {
		existing.mu.Lock()
		resolved := existing.resolved
		existing.mu.Unlock()
		if !resolved {
			t.mu.Unlock()
			return nil, errors.Conflict("task "+taskID+" is already tracked",
				errors.WithTaskID(taskID))
		}
		// A resolved record past its useful life can be replaced.
	}
	t.records[taskID] = rec
	t.mu.Unlock()

	t.replayEarlyEvents(rec)

	return rec.handle, nil
}

// replayEarlyEvents applies cached deliveries for a freshly tracked task.
func (t *Tracker) replayEarlyEvents(rec *record) {
	t.replayMu.RLock()
	sources := make([]ReplaySource, len(t.replays))
	copy(sources, t.replays)
	t.replayMu.RUnlock()

	for _, src := range sources {
		for _, ev := range src.PendingEvents(rec.taskID) {
			t.applyWebhook(rec, ev)
		}
	}
}

// Tracked reports whether a task is currently registered.
func (t *Tracker) Tracked(taskID string) bool {
	t.mu.RLock()
	_, ok := t.records[taskID]
	t.mu.RUnlock()
	return ok
}

// Handle returns the handle for a tracked task, or nil.
func (t *Tracker) Handle(taskID string) *Handle {
	t.mu.RLock()
	rec, ok := t.records[taskID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return rec.handle
}

// Untrack removes a task without resolving it. Its handle never fires.
func (t *Tracker) Untrack(taskID string) {
	t.mu.Lock()
	delete(t.records, taskID)
	t.mu.Unlock()
}

// ObservePoll feeds a polled task detail into the tracker. A terminal
// status (or a stop to ask for input) resolves the task; anything else
// just enriches the recorded detail.
func (t *Tracker) ObservePoll(taskID string, detail *api.TaskDetail) error {
	rec, err := t.lookup(taskID)
	if err != nil {
		return err
	}
	if detail == nil {
		return errors.InvalidInput("poll detail must not be nil", errors.WithTaskID(taskID))
	}

	rec.mu.Lock()
	if rec.resolved {
		rec.mu.Unlock()
		return nil
	}
	terminal := detail.Status.IsTerminal() || detail.AwaitingInput()
	if !terminal {
		rec.detail = mergeDetail(rec.detail, detail)
		rec.mu.Unlock()
		return nil
	}
	// The resolving observation is authoritative; earlier non-terminal
	// enrichment only fills gaps.
	rec.detail = mergeDetail(detail, rec.detail)
	res := t.resolveLocked(rec, SourcePoll)
	rec.mu.Unlock()

	t.finish(rec, res)
	return nil
}

// ObserveWebhook feeds a webhook event into the tracker. Duplicate event
// IDs are dropped, task_created enriches the detail, task_stopped
// resolves. Events for untracked tasks fail with UNKNOWN_TASK so the
// dispatcher can cache them for replay.
func (t *Tracker) ObserveWebhook(event *api.WebhookEvent) error {
	if event == nil || event.EventID == "" || event.TaskID() == "" {
		return errors.InvalidWebhook("event missing id or task detail")
	}
	rec, err := t.lookup(event.TaskID())
	if err != nil {
		return err
	}
	t.applyWebhook(rec, event)
	return nil
}

// applyWebhook runs the dedup-merge-resolve sequence for one event.
func (t *Tracker) applyWebhook(rec *record, event *api.WebhookEvent) {
	rec.mu.Lock()
	if _, seen := rec.seenEvents[event.EventID]; seen {
		rec.mu.Unlock()
		t.logger.WebhookDuplicate(event.EventID, rec.taskID)
		return
	}
	rec.seenEvents[event.EventID] = struct{}{}

	if rec.resolved {
		// Late observations after resolution are no-ops.
		rec.mu.Unlock()
		return
	}
	if event.EventType != api.EventTaskStopped {
		rec.detail = mergeDetail(rec.detail, event.TaskDetail)
		rec.mu.Unlock()
		return
	}
	rec.detail = mergeDetail(event.TaskDetail, rec.detail)
	res := t.resolveLocked(rec, SourceWebhook)
	rec.mu.Unlock()

	t.finish(rec, res)
}

// Fail resolves a tracked task with an error. Used for explicit
// cancellation; poll deadline expiry deliberately does NOT call this, so
// a late webhook can still resolve the task.
func (t *Tracker) Fail(taskID string, failure error) error {
	rec, err := t.lookup(taskID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.resolved {
		rec.mu.Unlock()
		return nil
	}
	rec.resolved = true
	rec.resolvedAt = t.now()
	res := &Resolution{
		TaskID:     taskID,
		Err:        failure,
		ResolvedAt: rec.resolvedAt,
	}
	rec.handle.complete(res)
	rec.mu.Unlock()

	t.finish(rec, res)
	return nil
}

// lookup finds the record for a task.
func (t *Tracker) lookup(taskID string) (*record, error) {
	if t.closed.Load() {
		return nil, errors.Internal("tracker closed")
	}
	t.mu.RLock()
	rec, ok := t.records[taskID]
	t.mu.RUnlock()
	if !ok {
		return nil, errors.UnknownTask(taskID)
	}
	return rec, nil
}

// resolveLocked marks the record resolved and completes its handle.
// Caller holds rec.mu. Returns the resolution for post-unlock delivery.
func (t *Tracker) resolveLocked(rec *record, source Source) *Resolution {
	rec.resolved = true
	rec.resolvedAt = t.now()
	res := &Resolution{
		TaskID:     rec.taskID,
		Detail:     rec.detail.Clone(),
		Source:     source,
		ResolvedAt: rec.resolvedAt,
	}
	rec.handle.complete(res)
	return res
}

// finish fires the callback and logs, outside the record lock.
func (t *Tracker) finish(rec *record, res *Resolution) {
	status := ""
	if res.Detail != nil {
		status = res.Detail.Status.String()
	} else if res.Err != nil {
		status = "failed"
	}
	t.logger.TaskResolved(rec.taskID, status, string(res.Source), res.ResolvedAt.Sub(rec.registered))

	if rec.callback != nil {
		rec.callback(res)
	}
}

// mergeDetail combines two observations of the same task. Fields of
// preferred win; fallback only fills gaps. Neither argument is mutated.
func mergeDetail(preferred, fallback *api.TaskDetail) *api.TaskDetail {
	if preferred == nil {
		return fallback.Clone()
	}
	merged := preferred.Clone()
	if fallback == nil {
		return merged
	}
	if merged.TaskID == "" {
		merged.TaskID = fallback.TaskID
	}
	if merged.TaskTitle == "" {
		merged.TaskTitle = fallback.TaskTitle
	}
	if merged.TaskURL == "" {
		merged.TaskURL = fallback.TaskURL
	}
	if merged.Status == "" {
		merged.Status = fallback.Status
	}
	if merged.Message == "" {
		merged.Message = fallback.Message
	}
	if len(merged.Attachments) == 0 && len(fallback.Attachments) > 0 {
		merged.Attachments = make([]api.OutputAttachment, len(fallback.Attachments))
		copy(merged.Attachments, fallback.Attachments)
	}
	if merged.StopReason == "" {
		merged.StopReason = fallback.StopReason
	}
	return merged
}

// sweepLoop removes resolved records past their retention window.
func (t *Tracker) sweepLoop() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.sweep()
		case <-t.done:
			return
		}
	}
}

// sweep drops records resolved longer than the retention window ago.
func (t *Tracker) sweep() {
	cutoff := t.now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()
	for taskID, rec := range t.records {
		rec.mu.Lock()
		drop := rec.resolved && rec.resolvedAt.Before(cutoff)
		rec.mu.Unlock()
		if drop {
			delete(t.records, taskID)
		}
	}
}

// Close stops the tracker. Unresolved handles never fire.
func (t *Tracker) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	t.sweepTicker.Stop()

	t.mu.Lock()
	t.records = make(map[string]*record)
	t.mu.Unlock()
	return nil
}
