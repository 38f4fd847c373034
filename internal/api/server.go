// Package api implements the dictation HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/dictation/internal/buildinfo"
	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/depwatch"
	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/scoring"
)

// Practice loads decks and grades attempts. [*practice.Service]
// satisfies it.
type Practice interface {
	Load(ctx context.Context, videoID string) (*practice.Deck, error)
	Check(ctx context.Context, deck *practice.Deck, index int, attempt string) (scoring.Evaluation, error)
}

// DependencyReporter reports external dependency health.
// [*depwatch.Manager] satisfies it.
type DependencyReporter interface {
	Status() []depwatch.Status
}

// RouteRegistrar adds routes to a mux. The web UI implements it.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	practice  Practice
	publicURL string
	web       RouteRegistrar
	deps      DependencyReporter
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, svc Practice, logger *slog.Logger) *Server {
	return &Server{
		address:   address,
		port:      port,
		practice:  svc,
		publicURL: fmt.Sprintf("http://localhost:%d", port),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// SetPublicURL sets the base URL encoded into share QR codes.
func (s *Server) SetPublicURL(u string) {
	s.publicURL = u
}

// SetWeb mounts the HTML interface alongside the API.
func (s *Server) SetWeb(web RouteRegistrar) {
	s.web = web
}

// SetDependencies adds dependency status to /health.
func (s *Server) SetDependencies(deps DependencyReporter) {
	s.deps = deps
}

// Handler returns the full route tree wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/subtitles", s.handleSubtitles)
	mux.HandleFunc("POST /api/score", s.handleScore)
	mux.HandleFunc("GET /api/practice/ws", s.handlePracticeWS)
	mux.HandleFunc("GET /api/qr", s.handleQR)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.web != nil {
		s.web.RegisterRoutes(mux)
	} else {
		mux.HandleFunc("GET /{$}", s.handleRoot)
	}

	return withRequestID(s.withLogging(mux))
}

// Start serves until the listener fails or [Server.Shutdown] is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Dictation",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

// healthResponse is the /health body. Status is "degraded" when any
// dependency is not ready; the server still answers 200 because cached
// decks and scoring keep working.
type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies []depwatch.Status `json:"dependencies,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.deps != nil {
		resp.Dependencies = s.deps.Status()
		for _, d := range resp.Dependencies {
			if !d.Ready {
				resp.Status = "degraded"
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// errorBody is the JSON shape of every API failure.
type errorBody struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Reason  captions.Reason `json:"reason,omitempty"`
}

// failure maps err to a status code and response body.
func failure(err error) (int, errorBody) {
	var ce *captions.Error
	if !errors.As(err, &ce) {
		return http.StatusNotFound, errorBody{
			Error:   err.Error(),
			Details: noCaptionsDetails,
			Reason:  captions.ReasonNoCaptions,
		}
	}

	switch ce.Reason {
	case captions.ReasonMissingID:
		return http.StatusBadRequest, errorBody{Error: "Missing videoId parameter", Reason: ce.Reason}
	case captions.ReasonInvalidID:
		return http.StatusBadRequest, errorBody{
			Error:   ce.Detail,
			Details: "Expected a YouTube URL or an 11-character video ID",
			Reason:  ce.Reason,
		}
	default:
		return http.StatusNotFound, errorBody{Error: ce.Detail, Details: noCaptionsDetails, Reason: ce.Reason}
	}
}

const noCaptionsDetails = "No English subtitles found for this video"

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	code, body := failure(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, body, s.logger)
}
