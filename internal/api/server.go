// Package api exposes the multi-receiver HTTP surface: the receiver upload
// endpoint and the per-sonde query API consumed by dashboards and export
// tooling. Authentication is intentionally absent; deployments front this
// with whatever access control they need.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/resonde/groundstation/internal/pipeline"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/storage"
)

// FlightLister lists recorded flights from the durable store.
type FlightLister interface {
	Flights(ctx context.Context) ([]storage.Flight, error)
}

// Config wires the server's collaborators. Pipeline and Registry are
// required; everything else degrades gracefully when absent.
type Config struct {
	Pipeline *pipeline.Pipeline
	Registry *session.Registry

	Flights FlightLister        // flight archive, optional
	CSVPath func(uint32) string // per-sonde CSV location, optional
	Hub     http.Handler        // live WebSocket endpoint, optional
	OnReset func(serial uint32) // invoked after a session reset, optional

	Logger *slog.Logger
}

// Server handles the ground-station HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// NewServer creates a Server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/sondes", s.handleSondes)
	mux.HandleFunc("GET /api/sondes/{sn}/latest", s.handleLatest)
	mux.HandleFunc("GET /api/sondes/{sn}/data", s.handleData)
	mux.HandleFunc("GET /api/sondes/{sn}/track", s.handleTrack)
	mux.HandleFunc("GET /api/sondes/{sn}/download/csv", s.handleDownloadCSV)
	mux.HandleFunc("POST /api/sondes/{sn}/reset", s.handleReset)
	mux.HandleFunc("GET /api/flights", s.handleFlights)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.cfg.Hub != nil {
		mux.Handle("GET /ws", s.cfg.Hub)
	}

	return mux
}
