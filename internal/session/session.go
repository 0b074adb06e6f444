// Package session tracks the per-sonde state of the ingestion pipeline: the
// pressure integrator, the duplicate-packet window and the flight history.
// Each physical sonde maps to exactly one live Session, and all mutating
// operations for a sonde run strictly sequenced under its lock. Different
// sondes share nothing and process fully in parallel.
package session

import (
	"sync"
	"time"

	"github.com/resonde/groundstation/internal/met"
	"github.com/resonde/groundstation/internal/telemetry"
)

// Session aggregates the integrator state, dedup window and history for one
// sonde across its flight. Sessions are created by the Registry.
type Session struct {
	serial    uint32
	startedAt time.Time

	mu           sync.Mutex
	integrator   *met.Integrator
	window       *Window
	history      []*telemetry.ProcessedReading
	historyLimit int
}

func newSession(serial uint32, startedAt time.Time, cfg Config) *Session {
	return &Session{
		serial:       serial,
		startedAt:    startedAt,
		integrator:   met.NewIntegrator(cfg.GroundPressure),
		window:       NewWindow(cfg.WindowSize),
		historyLimit: cfg.HistoryLimit,
	}
}

// Serial returns the sonde serial number this session belongs to.
func (s *Session) Serial() uint32 {
	return s.serial
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Ingest runs the order-sensitive part of the pipeline for one decoded
// packet: deduplication, pressure integration, derived quantities and the
// history append, all under the session lock.
//
// A duplicate packet returns (nil, nil) and leaves all state untouched. A
// met.DomainError leaves the integrator state untouched; the offending
// counter stays in the dedup window so a relayed copy of the same bad packet
// is not integrated either.
func (s *Session) Ingest(raw *telemetry.RawReading, now time.Time) (*telemetry.ProcessedReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.window.Accept(raw.Counter) {
		return nil, nil
	}

	pressure, err := s.integrator.Update(raw.Altitude, raw.Temperature, raw.Humidity)
	if err != nil {
		return nil, err
	}

	processed := &telemetry.ProcessedReading{
		RawReading:  *raw,
		Pressure:    pressure,
		Dewpoint:    met.Dewpoint(raw.Temperature, raw.Humidity),
		MixingRatio: met.MixingRatio(raw.Temperature, pressure, raw.Humidity),
		Theta:       met.Theta(raw.Temperature, pressure),
		ThetaE:      met.ThetaE(raw.Temperature, pressure, raw.Humidity),
		IngestedAt:  now,
	}

	s.history = append(s.history, processed)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}

	return processed, nil
}

// History returns a copy of the processed readings in processing order.
func (s *Session) History() []*telemetry.ProcessedReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]*telemetry.ProcessedReading, len(s.history))
	copy(history, s.history)
	return history
}

// Latest returns the most recent processed reading, or nil if none.
func (s *Session) Latest() *telemetry.ProcessedReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// Len returns the number of readings currently held in history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
