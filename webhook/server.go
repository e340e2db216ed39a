package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vinayprograms/taskwatch/logging"
)

const (
	// DefaultListenAddr is where the receiver listens.
	DefaultListenAddr = ":8477"

	// DeliveryPath is the route the service POSTs events to.
	DeliveryPath = "/webhooks/agent"

	// maxBodySize caps inbound delivery bodies.
	maxBodySize = 1 << 20 // 1 MiB
)

// Server exposes the dispatcher over HTTP. Deliveries are always acked
// with 200 so the sender never retries because of local processing; the
// body carries the local AckStatus for diagnostics.
type Server struct {
	dispatcher *Dispatcher
	httpServer *http.Server
	logger     *logging.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithListenAddr overrides the listen address.
func WithListenAddr(addr string) ServerOption {
	return func(s *Server) {
		if addr != "" {
			s.httpServer.Addr = addr
		}
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(l *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates the HTTP receiver for webhook deliveries.
func NewServer(dispatcher *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		dispatcher: dispatcher,
		logger:     logging.New().WithComponent("webhook-server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post(DeliveryPath, s.handleDelivery)
	r.Get("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         DefaultListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router, for mounting into an existing server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleDelivery acks every delivery with 200. Validation failures are
// logged and discarded, never surfaced to the sender.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeAck(w, AckInvalid)
		return
	}

	status := s.dispatcher.HandleDelivery(body)
	s.writeAck(w, status)
}

func (s *Server) writeAck(w http.ResponseWriter, status AckStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ListenAndServe blocks serving deliveries until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("webhook_listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
		"path": DeliveryPath,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
