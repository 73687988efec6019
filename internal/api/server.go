// Package api exposes the core chat service over HTTP/JSON, plus a
// WebSocket stream endpoint for live message delivery and the Prometheus
// metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ventline/vent-app/internal/chat"
	"github.com/ventline/vent-app/internal/metrics"
	"github.com/ventline/vent-app/internal/presence"
	"github.com/ventline/vent-app/internal/ratelimit"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Config holds HTTP server settings.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the HTTP API.
type Server struct {
	core     *chat.Service
	presence *presence.Store
	limiter  *ratelimit.Limiter
	httpSrv  *http.Server
}

// NewServer builds the API server. presence and limiter may be nil.
func NewServer(config Config, core *chat.Service, pres *presence.Store, limiter *ratelimit.Limiter) *Server {
	s := &Server{core: core, presence: pres, limiter: limiter}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/match", s.handleRequestMatch)
	mux.HandleFunc("GET /v1/match/{userID}", s.handlePollMatch)
	mux.HandleFunc("DELETE /v1/match/{userID}", s.handleCancelMatch)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/{id}/feedback", s.handleSubmitFeeling)
	mux.HandleFunc("PATCH /v1/sessions/{id}/feedback", s.handleSubmitNeedsHelp)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpSrv = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	log.Printf("[api] listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// errorBody is the JSON error payload: {"code": ..., "message": ...}.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// writeError maps typed core failures onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := statusForCode(code)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Don't leak internals; the cause is in the server log.
		log.Printf("[api] internal error: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: msg})
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeSessionClosed,
		apperrors.CodeAlreadyMatched,
		apperrors.CodeNeedsHelpWithoutFeeling:
		return http.StatusConflict
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidArg("malformed request body")
	}
	return nil
}
