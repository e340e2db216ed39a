package webhook

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/completion"
	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/logging"
	"github.com/vinayprograms/taskwatch/state"
)

// AckStatus reports what happened to a delivery. Every status is acked as
// success at the HTTP layer; the sender must never retry because of local
// processing detail.
type AckStatus string

const (
	// AckAccepted means the event was queued for processing.
	AckAccepted AckStatus = "accepted"

	// AckDuplicate means the event ID was already seen and was discarded.
	AckDuplicate AckStatus = "duplicate"

	// AckInvalid means the body failed shape validation and was discarded.
	AckInvalid AckStatus = "invalid"

	// AckDropped means the queue was full and the event was discarded.
	// A later redelivery or status poll will cover for it.
	AckDropped AckStatus = "dropped"
)

// Default dispatcher parameters.
const (
	// DefaultQueueSize bounds the internal work queue.
	DefaultQueueSize = 256

	// DefaultWorkers is the fixed number of queue consumers.
	DefaultWorkers = 4

	// DefaultDedupTTL is how long seen event IDs are remembered.
	DefaultDedupTTL = time.Hour

	// DefaultUnknownTTL is how long events for untracked tasks are cached
	// for replay.
	DefaultUnknownTTL = time.Hour

	dedupKeyPrefix   = "events.seen."
	unknownKeyPrefix = "events.unknown."
)

// CreatedObserver is notified once per task_created event.
type CreatedObserver func(event *api.WebhookEvent)

// Dispatcher validates, deduplicates, and routes inbound webhook
// deliveries. The HTTP-facing handler only validates shape and enqueues;
// a fixed pool of workers feeds the tracker.
type Dispatcher struct {
	tracker   *completion.Tracker
	store     state.Store
	onCreated CreatedObserver

	dedupTTL   time.Duration
	unknownTTL time.Duration

	queue   chan *api.WebhookEvent
	queueMu sync.RWMutex // serializes enqueue against Close
	workers int
	wg      sync.WaitGroup
	closed  atomic.Bool

	unknownMu sync.Mutex // serializes read-modify-write of unknown caches
	logger    *logging.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the internal work queue.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *api.WebhookEvent, n)
		}
	}
}

// WithWorkers sets the consumer pool size.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithDedupTTL overrides how long event IDs are remembered.
func WithDedupTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.dedupTTL = ttl
		}
	}
}

// WithUnknownTTL overrides how long unknown-task events are cached.
func WithUnknownTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.unknownTTL = ttl
		}
	}
}

// WithCreatedObserver registers the task_created hook.
func WithCreatedObserver(fn CreatedObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.onCreated = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher, starts its worker pool, and
// registers itself with the tracker as a replay source for early events.
func NewDispatcher(tracker *completion.Tracker, store state.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tracker:    tracker,
		store:      store,
		dedupTTL:   DefaultDedupTTL,
		unknownTTL: DefaultUnknownTTL,
		workers:    DefaultWorkers,
		logger:     logging.New().WithComponent("webhook"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan *api.WebhookEvent, DefaultQueueSize)
	}

	tracker.AddReplaySource(d)

	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.worker()
	}
	return d
}

// HandleDelivery processes one raw webhook body. It never fails from the
// sender's perspective: malformed bodies, duplicates, and overload are
// all acked, and the returned status only describes local handling.
func (d *Dispatcher) HandleDelivery(raw []byte) AckStatus {
	if d.closed.Load() {
		return AckDropped
	}

	event, err := decodeEvent(raw)
	if err != nil {
		d.logger.WebhookInvalid(err.Error())
		return AckInvalid
	}

	if d.seen(event.EventID) {
		d.logger.WebhookDuplicate(event.EventID, event.TaskID())
		return AckDuplicate
	}

	d.logger.WebhookReceived(event.EventID, string(event.EventType), event.TaskID())

	d.queueMu.RLock()
	if d.closed.Load() {
		d.queueMu.RUnlock()
		return AckDropped
	}
	select {
	case d.queue <- event:
		d.queueMu.RUnlock()
		// Marked only now: a dropped event must stay unseen so its
		// redelivery is processed instead of discarded as a duplicate.
		d.markSeen(event.EventID)
		return AckAccepted
	default:
		d.queueMu.RUnlock()
		d.logger.Warn("webhook_queue_full", map[string]interface{}{
			"event_id": event.EventID,
			"task_id":  event.TaskID(),
		})
		return AckDropped
	}
}

// decodeEvent validates the delivery shape.
func decodeEvent(raw []byte) (*api.WebhookEvent, error) {
	var event api.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, errors.InvalidWebhook("body is not valid JSON", errors.WithCause(err))
	}
	if event.EventID == "" {
		return nil, errors.InvalidWebhook("missing event_id")
	}
	switch event.EventType {
	case api.EventTaskCreated, api.EventTaskStopped:
	default:
		return nil, errors.InvalidWebhook("unknown event_type "+string(event.EventType),
			errors.WithEventID(event.EventID))
	}
	if event.TaskID() == "" {
		return nil, errors.InvalidWebhook("missing task_detail.task_id",
			errors.WithEventID(event.EventID))
	}
	return &event, nil
}

// seen reports whether an event ID was already accepted.
func (d *Dispatcher) seen(eventID string) bool {
	_, err := d.store.Get(dedupKeyPrefix + eventID)
	return err == nil
}

// markSeen remembers an accepted event ID for the dedup TTL.
func (d *Dispatcher) markSeen(eventID string) {
	d.store.Put(dedupKeyPrefix+eventID, []byte("1"), d.dedupTTL)
}

// worker consumes the queue until Close.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.queue {
		d.process(event)
	}
}

// process routes one validated, deduplicated event.
func (d *Dispatcher) process(event *api.WebhookEvent) {
	if event.EventType == api.EventTaskCreated && d.onCreated != nil {
		d.onCreated(event)
	}

	err := d.tracker.ObserveWebhook(event)
	if err == nil {
		return
	}
	if errors.Is(err, errors.ErrCodeUnknownTask) {
		d.logger.UnknownTaskEvent(event.EventID, event.TaskID())
		d.cacheUnknown(event)
		// A Track may have run between the failed observation and the
		// cache write; its replay saw an empty cache, so replay here.
		// The tracker's event dedup absorbs the overlap if both run.
		if d.tracker.Tracked(event.TaskID()) {
			for _, ev := range d.PendingEvents(event.TaskID()) {
				d.tracker.ObserveWebhook(ev)
			}
		}
		return
	}
	d.logger.Error("webhook_observe_failed", map[string]interface{}{
		"event_id": event.EventID,
		"task_id":  event.TaskID(),
		"error":    err.Error(),
	})
}

// cacheUnknown stores an event for a task nobody tracks yet, so a later
// Track can replay it.
func (d *Dispatcher) cacheUnknown(event *api.WebhookEvent) {
	d.unknownMu.Lock()
	defer d.unknownMu.Unlock()

	key := unknownKeyPrefix + event.TaskID()
	var events []*api.WebhookEvent
	if data, err := d.store.Get(key); err == nil {
		json.Unmarshal(data, &events)
	}
	events = append(events, event)

	if data, err := json.Marshal(events); err == nil {
		d.store.Put(key, data, d.unknownTTL)
	}
}

// PendingEvents returns and drops cached events for a task. It implements
// the tracker's replay source interface.
func (d *Dispatcher) PendingEvents(taskID string) []*api.WebhookEvent {
	d.unknownMu.Lock()
	defer d.unknownMu.Unlock()

	key := unknownKeyPrefix + taskID
	data, err := d.store.Get(key)
	if err != nil {
		return nil
	}
	d.store.Delete(key)

	var events []*api.WebhookEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil
	}
	return events
}

// Close stops accepting deliveries and waits for in-flight events. The
// queue lock keeps the close from racing a concurrent enqueue.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.queueMu.Lock()
	close(d.queue)
	d.queueMu.Unlock()
	d.wg.Wait()
	return nil
}
