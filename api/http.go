package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/logging"
)

const (
	// DefaultBaseURL is the production endpoint of the task service.
	DefaultBaseURL = "https://api.manus.ai/v1"

	// apiKeyHeader carries the caller's credential on every request.
	apiKeyHeader = "API_KEY"

	// requestIDHeader correlates requests in logs.
	requestIDHeader = "X-Request-ID"
)

// HTTPTransport implements Transport over the service's REST API.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logging.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithBaseURL overrides the service base URL (no trailing slash).
func WithBaseURL(u string) HTTPOption {
	return func(t *HTTPTransport) {
		t.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport creates a transport authenticated with the given API key.
func NewHTTPTransport(apiKey string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logging.New().WithComponent("api"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateFile creates a file record and returns a presigned upload URL.
func (t *HTTPTransport) CreateFile(ctx context.Context, filename string) (*FileRecord, error) {
	if filename == "" {
		return nil, errors.InvalidInput("filename must not be empty")
	}

	var record FileRecord
	body := map[string]string{"filename": filename}
	if err := t.doJSON(ctx, http.MethodPost, "/files", body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UploadContent PUTs raw bytes to a presigned upload URL. The URL is not
// relative to the service base; it points at the service's object store.
func (t *HTTPTransport) UploadContent(ctx context.Context, uploadURL string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return errors.InvalidInput("invalid upload URL", errors.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		// Presigned URLs report expiry as 403.
		return errors.New(errors.ErrCodeUploadExpired, "upload URL rejected by object store",
			errors.WithMetadata("status", resp.Status))
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrCodeUnavailable, "object store unavailable",
			errors.WithMetadata("status", resp.Status))
	default:
		return errors.New(errors.ErrCodeUploadFailed, "object store rejected upload",
			errors.WithMetadata("status", resp.Status))
	}
}

// CreateTask submits a new task (or a follow-up turn).
func (t *HTTPTransport) CreateTask(ctx context.Context, req *CreateTaskRequest) (*CreateTaskResponse, error) {
	if req == nil || req.Prompt == "" {
		return nil, errors.InvalidInput("prompt must not be empty")
	}

	var resp CreateTaskResponse
	if err := t.doJSON(ctx, http.MethodPost, "/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask fetches the current task detail.
func (t *HTTPTransport) GetTask(ctx context.Context, taskID string) (*TaskDetail, error) {
	if taskID == "" {
		return nil, errors.InvalidInput("task ID must not be empty")
	}

	var detail TaskDetail
	if err := t.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &detail); err != nil {
		return nil, err
	}
	if detail.TaskID == "" {
		detail.TaskID = taskID
	}
	return &detail, nil
}

// RegisterWebhook registers a delivery URL for task events.
func (t *HTTPTransport) RegisterWebhook(ctx context.Context, deliveryURL string) (*WebhookRegistration, error) {
	if deliveryURL == "" {
		return nil, errors.InvalidInput("webhook URL must not be empty")
	}

	var reg WebhookRegistration
	body := map[string]string{"url": deliveryURL}
	if err := t.doJSON(ctx, http.MethodPost, "/webhooks", body, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DeleteWebhook removes a webhook registration.
func (t *HTTPTransport) DeleteWebhook(ctx context.Context, webhookID string) error {
	if webhookID == "" {
		return errors.InvalidInput("webhook ID must not be empty")
	}
	return t.doJSON(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(webhookID), nil, nil)
}

// doJSON performs a JSON request against the service and decodes the
// response into out (if non-nil). Errors carry the taxonomy codes so the
// retry layer can classify them.
func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Internal("encoding request body", errors.WithCause(err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return errors.Internal("building request", errors.WithCause(err))
	}

	requestID := uuid.NewString()
	req.Header.Set(apiKeyHeader, t.apiKey)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	t.logger.Debug("api_request", map[string]interface{}{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp, method, path)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Internal("decoding response body", errors.WithCause(err))
	}
	return nil
}

// classifyTransportError maps low-level HTTP client failures to taxonomy codes.
func classifyTransportError(err error) *errors.Error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.Timeout("request timed out", errors.WithCause(err))
	}
	return errors.New(errors.ErrCodeNetworkErr, "request failed", errors.WithCause(err))
}

// apiError is the service's error response shape.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classifyStatus maps non-2xx responses to taxonomy codes.
func classifyStatus(resp *http.Response, method, path string) *errors.Error {
	var msg string
	var apiErr apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &apiErr) == nil {
		if apiErr.Message != "" {
			msg = apiErr.Message
		} else {
			msg = apiErr.Error
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("%s %s returned %s", method, path, resp.Status)
	}

	opts := []errors.Option{errors.WithMetadata("status", resp.Status)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.RateLimited(msg, opts...)
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeUnauthorized, msg, opts...)
	case resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrCodeForbidden, msg, opts...)
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(msg, opts...)
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrCodeUnavailable, msg, opts...)
	default:
		return errors.InvalidInput(msg, opts...)
	}
}
