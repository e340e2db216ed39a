package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/bus"
	"github.com/vinayprograms/taskwatch/completion"
	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/files"
	"github.com/vinayprograms/taskwatch/logging"
	"github.com/vinayprograms/taskwatch/retry"
	"github.com/vinayprograms/taskwatch/state"
	"github.com/vinayprograms/taskwatch/webhook"
)

// TaskRequest describes a task to submit. Prompt is required; TaskID
// turns the submission into a follow-up turn on an existing task.
type TaskRequest struct {
	Prompt       string
	AgentProfile string
	TaskMode     string
	TaskID       string
	Attachments  []files.Source
	Connectors   []string
}

// Task is an accepted task with its completion handle.
type Task struct {
	ID       string
	Title    string
	URL      string
	ShareURL string
	Handle   *completion.Handle
}

// Client ties the pieces together: it submits tasks, tracks their
// completion through both the poll and webhook paths, and manages file
// attachments.
type Client struct {
	cfg        Config
	transport  api.Transport
	caller     *retry.Caller
	store      state.Store
	filesMgr   *files.Manager
	tracker    *completion.Tracker
	dispatcher *webhook.Dispatcher
	server     *webhook.Server
	eventBus   bus.MessageBus
	logger     *logging.Logger
	closed     atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the service transport. Tests use a fake.
func WithTransport(t api.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithStore replaces the state store (default in-memory).
func WithStore(s state.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithBus enables resolution fan-out on a message bus.
func WithBus(b bus.MessageBus) Option {
	return func(c *Client) {
		c.eventBus = b
	}
}

// WithCaller replaces the retry policy for service calls.
func WithCaller(r *retry.Caller) Option {
	return func(c *Client) {
		c.caller = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client from configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}

	c := &Client{
		cfg:    cfg,
		logger: logging.New().WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		var httpOpts []api.HTTPOption
		if cfg.BaseURL != "" {
			httpOpts = append(httpOpts, api.WithBaseURL(cfg.BaseURL))
		}
		c.transport = api.NewHTTPTransport(cfg.APIKey, httpOpts...)
	}
	if c.caller == nil {
		c.caller = retry.NewCaller(retry.WithJitter())
	}
	if c.store == nil {
		c.store = state.NewMemoryStore()
	}
	if c.eventBus == nil && cfg.NATSURL != "" {
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "taskwatch"
		b, err := bus.NewNATSBus(natsCfg)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to NATS")
		}
		c.eventBus = b
	}

	c.tracker = completion.NewTracker()
	c.filesMgr = files.NewManager(c.transport, c.store, files.WithCaller(c.caller))
	c.dispatcher = webhook.NewDispatcher(c.tracker, c.store)

	if cfg.WebhookAddr != "" {
		c.server = webhook.NewServer(c.dispatcher, webhook.WithListenAddr(cfg.WebhookAddr))
		go c.server.ListenAndServe()
	}

	return c, nil
}

// Files returns the attachment manager for standalone uploads.
func (c *Client) Files() *files.Manager {
	return c.filesMgr
}

// Tracker returns the completion tracker for direct observation feeds.
func (c *Client) Tracker() *completion.Tracker {
	return c.tracker
}

// CreateTask submits a task and registers it for completion tracking.
// The returned Task's Handle resolves exactly once; onResolved, if
// non-nil, fires at that moment.
func (c *Client) CreateTask(ctx context.Context, req TaskRequest, onResolved completion.Callback) (*Task, error) {
	if req.Prompt == "" {
		return nil, errors.InvalidInput("prompt must not be empty")
	}

	attachments, err := c.filesMgr.ResolveAttachments(ctx, req.Attachments)
	if err != nil {
		return nil, err
	}

	wireReq := &api.CreateTaskRequest{
		Prompt:       req.Prompt,
		AgentProfile: firstNonEmpty(req.AgentProfile, c.cfg.AgentProfile),
		TaskMode:     firstNonEmpty(req.TaskMode, c.cfg.TaskMode),
		TaskID:       req.TaskID,
		Attachments:  attachments,
		Connectors:   req.Connectors,
	}

	resp, err := retry.DoValue(ctx, c.caller, "create task", func(ctx context.Context) (*api.CreateTaskResponse, error) {
		return c.transport.CreateTask(ctx, wireReq)
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeTaskCreateFailed, "submitting task")
	}

	c.logger.TaskCreated(resp.TaskID, resp.TaskTitle)

	handle, err := c.track(resp.TaskID, onResolved)
	if err != nil {
		return nil, err
	}

	return &Task{
		ID:       resp.TaskID,
		Title:    resp.TaskTitle,
		URL:      resp.TaskURL,
		ShareURL: resp.ShareURL,
		Handle:   handle,
	}, nil
}

// TrackCompletion registers an externally created task for tracking.
func (c *Client) TrackCompletion(taskID string, onResolved completion.Callback) (*completion.Handle, error) {
	return c.track(taskID, onResolved)
}

// track wraps the callback with bus fan-out when a bus is configured.
func (c *Client) track(taskID string, cb completion.Callback) (*completion.Handle, error) {
	wrapped := cb
	if c.eventBus != nil {
		wrapped = func(res *completion.Resolution) {
			c.publishResolution(res)
			if cb != nil {
				cb(res)
			}
		}
	}
	return c.tracker.Track(taskID, wrapped)
}

// publishResolution mirrors a resolution onto the bus. Publish failures
// are logged, never surfaced; the handle already carries the outcome.
func (c *Client) publishResolution(res *completion.Resolution) {
	ev := &bus.ResolutionEvent{
		TaskID:     res.TaskID,
		Source:     string(res.Source),
		ResolvedAt: res.ResolvedAt,
	}
	if res.Detail != nil {
		ev.Status = res.Detail.Status.String()
		ev.StopReason = string(res.Detail.StopReason)
		ev.Message = res.Detail.Message
	} else if res.Err != nil {
		ev.Status = "failed"
		ev.Message = res.Err.Error()
	}
	if err := bus.PublishResolution(c.eventBus, ev); err != nil {
		c.logger.Warn("resolution_publish_failed", map[string]interface{}{
			"task_id": res.TaskID,
			"error":   err.Error(),
		})
	}
}

// WaitForCompletion polls the task until it resolves through either
// path or MaxWait elapses. On timeout the task STAYS tracked; a late
// webhook can still resolve it and the caller may wait again.
func (c *Client) WaitForCompletion(ctx context.Context, taskID string) (*completion.Resolution, error) {
	handle := c.tracker.Handle(taskID)
	if handle == nil {
		return nil, errors.UnknownTask(taskID)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxWait)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	// Poll immediately; the task may already be done.
	c.pollOnce(ctx, taskID, 1)

	attempt := 1
	for {
		select {
		case <-handle.Done():
			res := handle.Resolution()
			return res, res.Err
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.CompletionTimeout(taskID, time.Since(start))
			}
			return nil, errors.Wrap(ctx.Err(), "waiting for "+taskID)
		case <-ticker.C:
			attempt++
			c.pollOnce(ctx, taskID, attempt)
		}
	}
}

// pollOnce fetches the task detail and feeds it to the tracker. Poll
// failures are logged and absorbed; the next tick tries again.
func (c *Client) pollOnce(ctx context.Context, taskID string, attempt int) {
	detail, err := c.transport.GetTask(ctx, taskID)
	if err != nil {
		c.logger.Warn("poll_failed", map[string]interface{}{
			"task_id": taskID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		return
	}
	c.logger.PollObserved(taskID, detail.Status.String(), attempt)
	c.tracker.ObservePoll(taskID, detail)
}

// HandleWebhookDelivery feeds a raw delivery body into the dispatcher.
// Use this when deliveries arrive through an existing HTTP surface
// instead of the built-in receiver.
func (c *Client) HandleWebhookDelivery(raw []byte) webhook.AckStatus {
	return c.dispatcher.HandleDelivery(raw)
}

// RegisterWebhook registers a delivery URL with the service. An empty
// url falls back to the configured WebhookURL.
func (c *Client) RegisterWebhook(ctx context.Context, url string) (*api.WebhookRegistration, error) {
	if url == "" {
		url = c.cfg.WebhookURL
	}
	if url == "" {
		return nil, errors.InvalidInput("no webhook URL configured")
	}
	return retry.DoValue(ctx, c.caller, "register webhook", func(ctx context.Context) (*api.WebhookRegistration, error) {
		return c.transport.RegisterWebhook(ctx, url)
	})
}

// DeleteWebhook removes a webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	return c.caller.Do(ctx, "delete webhook", func(ctx context.Context) error {
		return c.transport.DeleteWebhook(ctx, webhookID)
	})
}

// Close releases all resources. Pending handles never fire.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.server.Shutdown(ctx)
		cancel()
	}
	c.dispatcher.Close()
	c.tracker.Close()
	c.store.Close()
	if c.eventBus != nil {
		c.eventBus.Close()
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
