package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/resonde/groundstation/internal/met"
	"github.com/resonde/groundstation/internal/pipeline"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/storage"
)

// maxUploadSize bounds receiver upload bodies; a telemetry record is tiny.
const maxUploadSize = 64 << 10

// trackCoordinateFloor filters GPS noise at (0, 0) before a fix is acquired.
const trackCoordinateFloor = 0.1

type sondeSummary struct {
	Serial      uint32     `json:"serial_number"`
	StartedAt   time.Time  `json:"started_at"`
	PacketCount int        `json:"packet_count"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var record map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %s", err))
		return
	}

	processed, err := s.cfg.Pipeline.ProcessUpload(record)

	var domainErr *met.DomainError
	switch {
	case pipeline.IsMalformed(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return

	case errors.As(err, &domainErr):
		// The packet decoded fine but cannot be integrated; the sonde's
		// trajectory is preserved and the receiver should not retry.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return

	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if processed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "duplicate"})
		return
	}

	s.logger.Info("packet accepted",
		slog.Uint64("serial", uint64(processed.Serial)),
		slog.Uint64("counter", uint64(processed.Counter)),
		slog.Float64("altitude", processed.Altitude),
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "processed": processed})
}

func (s *Server) handleSondes(w http.ResponseWriter, r *http.Request) {
	sessions := s.cfg.Registry.Sessions()

	sondes := make([]sondeSummary, 0, len(sessions))
	for _, sess := range sessions {
		summary := sondeSummary{
			Serial:      sess.Serial(),
			StartedAt:   sess.StartedAt(),
			PacketCount: sess.Len(),
		}
		if latest := sess.Latest(); latest != nil {
			t := latest.IngestedAt
			summary.LastUpdate = &t
		}
		sondes = append(sondes, summary)
	}

	writeJSON(w, http.StatusOK, sondes)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	latest := sess.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, "no readings yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	track := make([][2]float64, 0)
	for _, reading := range sess.History() {
		if math.Abs(reading.Latitude) <= trackCoordinateFloor && math.Abs(reading.Longitude) <= trackCoordinateFloor {
			continue
		}
		track = append(track, [2]float64{reading.Latitude, reading.Longitude})
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	serial, ok := parseSerial(w, r)
	if !ok {
		return
	}
	if s.cfg.CSVPath == nil {
		writeError(w, http.StatusNotFound, "CSV recording disabled")
		return
	}

	path := s.cfg.CSVPath(serial)
	stat, err := os.Stat(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "sonde not found")
		return
	}

	s.logger.Info("serving CSV export",
		slog.Uint64("serial", uint64(serial)),
		slog.String("size", humanize.Bytes(uint64(stat.Size()))),
	)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sonde_%d_data.csv", serial))
	http.ServeFile(w, r, path)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	serial, ok := parseSerial(w, r)
	if !ok {
		return
	}

	s.cfg.Registry.Reset(serial)
	if s.cfg.OnReset != nil {
		s.cfg.OnReset(serial)
	}

	s.logger.Info("session reset, new launch declared", slog.Uint64("serial", uint64(serial)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Flights == nil {
		writeError(w, http.StatusNotFound, "flight archive disabled")
		return
	}

	flights, err := s.cfg.Flights.Flights(r.Context())
	if err != nil {
		s.logger.Error(fmt.Sprintf("listing flights: %s", err))
		writeError(w, http.StatusInternalServerError, "listing flights failed")
		return
	}
	if flights == nil {
		flights = []storage.Flight{}
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// session resolves the {sn} path parameter to a live session, writing the
// error response itself when it cannot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	serial, ok := parseSerial(w, r)
	if !ok {
		return nil, false
	}

	sess, ok := s.cfg.Registry.Get(serial)
	if !ok {
		writeError(w, http.StatusNotFound, "sonde not found")
		return nil, false
	}
	return sess, true
}

func parseSerial(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	serial, err := strconv.ParseUint(r.PathValue("sn"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sonde serial number")
		return 0, false
	}
	return uint32(serial), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
