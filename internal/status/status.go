// Package status exposes a small observation surface over HTTP: liveness,
// a metrics snapshot, and a live event stream. It is read-only; nothing in
// here can steer the generator.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/quietriver/chaff/internal/engine"
	"github.com/quietriver/chaff/internal/metrics"
)

// Server serves /healthz, /api/stats and /events.
type Server struct {
	srv     *http.Server
	addr    string
	agg     *metrics.Aggregator
	broker  *engine.Broker
	version string
	logger  *slog.Logger
}

// New builds the server for the given port. It does not listen yet.
func New(port int, agg *metrics.Aggregator, broker *engine.Broker, version string, logger *slog.Logger) *Server {
	s := &Server{
		agg:     agg,
		broker:  broker,
		version: version,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start listens and serves until Shutdown. It returns the serve error on a
// channel so the caller can treat listener failure as fatal.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		errCh <- fmt.Errorf("status: listen %s: %w", s.srv.Addr, err)
		return errCh
	}
	s.addr = ln.Addr().String()
	s.logger.Info("status server listening", "addr", s.addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status: serve: %w", err)
		}
	}()
	return errCh
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() string { return s.addr }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot())
}

// handleEvents streams worker events as Server-Sent Events until the client
// disconnects. Events dropped by the broker (slow client) are simply absent
// from the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("status: marshal event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: action\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
