package files

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/logging"
	"github.com/vinayprograms/taskwatch/retry"
	"github.com/vinayprograms/taskwatch/state"
)

const (
	// DefaultRetention is how long uploaded file records stay usable as
	// task attachments before the service garbage-collects them.
	DefaultRetention = 48 * time.Hour

	// expirySkew is the margin subtracted from the upload URL deadline
	// before attempting a PUT, covering clock drift and transfer time.
	expirySkew = 10 * time.Second

	// retentionKeyPrefix namespaces file records in the state store.
	retentionKeyPrefix = "files."
)

// Manager drives the service's two-phase file upload: register a filename
// to get a presigned URL, then PUT the content before the URL expires.
// Registered records are single-use.
type Manager struct {
	transport api.Transport
	caller    *retry.Caller
	store     state.Store
	retention time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetention overrides the record retention window.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithCaller sets the retry policy for service calls.
func WithCaller(c *retry.Caller) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.caller = c
		}
	}
}

// WithClock overrides the time source. Tests use this to control expiry.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager. The store holds file records for their
// retention window; pass a MemoryStore for single-process use.
func NewManager(transport api.Transport, store state.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport: transport,
		caller:    retry.NewCaller(),
		store:     store,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    logging.New().WithComponent("files"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterUpload creates a file record on the service and returns it with
// the presigned upload URL. The record is remembered for the retention
// window so its ID can be attached to later tasks.
func (m *Manager) RegisterUpload(ctx context.Context, filename string) (*api.FileRecord, error) {
	if filename == "" {
		return nil, errors.InvalidInput("filename must not be empty")
	}

	record, err := retry.DoValue(ctx, m.caller, "register file", func(ctx context.Context) (*api.FileRecord, error) {
		return m.transport.CreateFile(ctx, filename)
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeFileRegisterFailed, "registering "+filename)
	}

	if data, merr := json.Marshal(record); merr == nil {
		m.store.Put(retentionKeyPrefix+record.ID, data, m.retention)
	}

	return record, nil
}

// UploadContent PUTs content to the record's presigned URL. The expiry is
// checked locally before any network call, and again before each retry, so
// an expired URL never costs a round trip. Records are single-use; a second
// upload against the same record fails with UPLOAD_EXPIRED.
func (m *Manager) UploadContent(ctx context.Context, record *api.FileRecord, content []byte) error {
	if record == nil || record.UploadURL == "" {
		return errors.InvalidInput("file record has no upload URL")
	}

	m.logger.UploadStart(record.ID, record.Filename, len(content))
	start := m.now()

	err := m.caller.Do(ctx, "upload content", func(ctx context.Context) error {
		if err := m.checkExpiry(record); err != nil {
			return err
		}
		return m.transport.UploadContent(ctx, record.UploadURL, content)
	})

	m.logger.UploadComplete(record.ID, m.now().Sub(start), err)
	if err != nil {
		return err
	}

	// Consume the record so it cannot be uploaded to twice.
	record.UploadURL = ""
	record.Status = "uploaded"
	if data, merr := json.Marshal(record); merr == nil {
		m.store.Put(retentionKeyPrefix+record.ID, data, m.retention)
	}
	return nil
}

// checkExpiry fails fast when the presigned URL is past (or within the
// skew margin of) its deadline.
func (m *Manager) checkExpiry(record *api.FileRecord) error {
	if record.UploadExpiresAt.IsZero() {
		return nil
	}
	if !m.now().Before(record.UploadExpiresAt.Add(-expirySkew)) {
		return errors.UploadExpired(record.ID, record.UploadExpiresAt)
	}
	return nil
}

// Upload registers a filename and uploads its content in one call,
// returning the file ID to attach to a task.
func (m *Manager) Upload(ctx context.Context, filename string, content []byte) (string, error) {
	record, err := m.RegisterUpload(ctx, filename)
	if err != nil {
		return "", err
	}
	if err := m.UploadContent(ctx, record, content); err != nil {
		return "", err
	}
	return record.ID, nil
}

// Record returns the remembered file record for an ID, or NOT_FOUND once
// the retention window has passed.
func (m *Manager) Record(fileID string) (*api.FileRecord, error) {
	data, err := m.store.Get(retentionKeyPrefix + fileID)
	if err != nil {
		return nil, errors.NotFound("file record "+fileID, errors.WithCause(err))
	}
	var record api.FileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Internal("decoding file record", errors.WithCause(err))
	}
	return &record, nil
}
