// Package server exposes the webhook endpoint for deployments that receive
// events over HTTP instead of being invoked per event by a workflow runner.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	gh "github.com/google/go-github/v68/github"

	"github.com/threadkeeper/threadkeeper/internal/event"
)

// Dispatcher routes a parsed event to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) error
}

// Config holds server configuration.
type Config struct {
	Dispatcher Dispatcher
	// WebhookSecret verifies X-Hub-Signature-256 on inbound deliveries.
	// Empty disables verification (local testing only).
	WebhookSecret string
}

// Server wraps the webhook HTTP server.
type Server struct {
	mux      *http.ServeMux
	listener net.Listener
}

// New creates a Server bound to the given address (e.g. "127.0.0.1:8410").
// It does not start serving; call Serve() for that.
func New(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &Server{mux: mux, listener: ln}

	wh := &webhookHandler{dispatcher: cfg.Dispatcher, secret: []byte(cfg.WebhookSecret)}
	mux.HandleFunc("POST /webhook", wh.handle)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s, nil
}

// Addr returns the listener's address (useful when binding to :0 in tests).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve starts accepting connections. It blocks until the listener is closed.
func (s *Server) Serve() error {
	return http.Serve(s.listener, s.mux)
}

// Close shuts down the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

type webhookHandler struct {
	dispatcher Dispatcher
	secret     []byte
}

// handle validates, parses, and dispatches one delivery. Each delivery runs
// to completion before the response is written; GitHub's redelivery is the
// only retry mechanism.
func (h *webhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	deliveryID := gh.DeliveryID(r)
	eventName := gh.WebHookType(r)

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		slog.Warn("rejecting webhook delivery", "delivery", deliveryID, "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ev, err := event.Parse(eventName, payload)
	if errors.Is(err, event.ErrUnsupported) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		slog.Warn("malformed webhook payload", "delivery", deliveryID, "event", eventName, "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	slog.Info("handling event", "delivery", deliveryID, "event", eventName, "kind", ev.Kind(), "pr", ev.Pull().Number)
	if err := h.dispatcher.Dispatch(r.Context(), ev); err != nil {
		slog.Error("handling event", "delivery", deliveryID, "kind", ev.Kind(), "pr", ev.Pull().Number, "error", err)
		http.Error(w, "handler failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
