package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/resonde/groundstation/internal/telemetry"
)

// FlightLog maps live sonde serials to flight rows, creating the row lazily
// on a sonde's first accepted reading. A session reset calls Forget so the
// next reading opens a new flight.
type FlightLog struct {
	store          *Store
	groundPressure float64

	mu      sync.Mutex
	flights map[uint32]int64
}

// NewFlightLog creates a FlightLog recording into store.
func NewFlightLog(store *Store, groundPressure float64) *FlightLog {
	return &FlightLog{
		store:          store,
		groundPressure: groundPressure,
		flights:        make(map[uint32]int64),
	}
}

// Record persists one reading, creating the flight row if needed. It runs on
// an async sink worker, so a background context is fine here.
func (f *FlightLog) Record(r *telemetry.ProcessedReading) error {
	flightID, err := f.flightID(r)
	if err != nil {
		return err
	}

	if err = f.store.InsertReading(context.Background(), flightID, r); err != nil {
		return fmt.Errorf("recording reading for sonde %d: %w", r.Serial, err)
	}
	return nil
}

// Forget drops the serial-to-flight mapping after a declared launch boundary.
func (f *FlightLog) Forget(serial uint32) {
	f.mu.Lock()
	delete(f.flights, serial)
	f.mu.Unlock()
}

func (f *FlightLog) flightID(r *telemetry.ProcessedReading) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.flights[r.Serial]; ok {
		return id, nil
	}

	id, err := f.store.CreateFlight(context.Background(), r.Serial, r.IngestedAt, f.groundPressure)
	if err != nil {
		return 0, fmt.Errorf("creating flight for sonde %d: %w", r.Serial, err)
	}

	f.flights[r.Serial] = id
	return id, nil
}
