// Package storage persists flights and processed readings to SQLite. It is a
// downstream collaborator of the ingestion pipeline: the in-memory session
// state never depends on a write having succeeded.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/resonde/groundstation/internal/telemetry"
)

// Flight is one recorded sonde flight, i.e. one ingestion session.
type Flight struct {
	ID             int64     `json:"id"`
	Serial         uint32    `json:"serial_number"`
	StartedAt      time.Time `json:"started_at"`
	GroundPressure float64   `json:"ground_pressure_hpa"`
	Readings       int64     `json:"readings"`
}

// Store handles database operations. Write and read connections are opened
// lazily and kept separate so bulk ingestion and API queries do not contend.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a Store for the database at dbPath. The schema is initialized
// on first write access.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// The write side creates the file and schema first.
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateFlight creates a new flight row and returns its ID.
func (s *Store) CreateFlight(ctx context.Context, serial uint32, startedAt time.Time, groundPressure float64) (flightID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertFlightSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, serial, startedAt.UTC(), groundPressure)
	if err != nil {
		err = fmt.Errorf("inserting flight: %w", err)
		return
	}

	flightID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting flight ID: %w", err)
	}
	return
}

// Flights returns all recorded flights with their reading counts, ordered by
// start time.
func (s *Store) Flights(ctx context.Context) (flights []Flight, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		err = fmt.Errorf("querying flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Flight
		if err = rows.Scan(&f.ID, &f.Serial, &f.StartedAt, &f.GroundPressure, &f.Readings); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}
		flights = append(flights, f)
	}
	err = rows.Err()
	return
}

// InsertReading appends one processed reading to a flight.
func (s *Store) InsertReading(ctx context.Context, flightID int64, r *telemetry.ProcessedReading) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx,
		flightID,
		r.IngestedAt.UTC(),
		r.DeviceTime.UTC(),
		r.Counter,
		r.Latitude,
		r.Longitude,
		r.Altitude,
		r.VerticalSpeed,
		r.EastSpeed,
		r.NorthSpeed,
		r.Satellites,
		r.Temperature,
		r.Humidity,
		r.Battery,
		r.RSSI,
		r.Pressure,
		r.Dewpoint,
		r.MixingRatio,
		r.Theta,
		r.ThetaE,
	); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return
}

// Readings returns all readings of a flight in ingestion order.
func (s *Store) Readings(ctx context.Context, flightID int64) (readings []*telemetry.ProcessedReading, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectReadingsSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	rows, err := stmt.QueryContext(ctx, flightID)
	if err != nil {
		err = fmt.Errorf("querying readings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r telemetry.ProcessedReading
		if err = rows.Scan(
			&r.IngestedAt,
			&r.DeviceTime,
			&r.Counter,
			&r.Latitude,
			&r.Longitude,
			&r.Altitude,
			&r.VerticalSpeed,
			&r.EastSpeed,
			&r.NorthSpeed,
			&r.Satellites,
			&r.Temperature,
			&r.Humidity,
			&r.Battery,
			&r.RSSI,
			&r.Pressure,
			&r.Dewpoint,
			&r.MixingRatio,
			&r.Theta,
			&r.ThetaE,
		); err != nil {
			err = fmt.Errorf("scanning reading: %w", err)
			return
		}
		readings = append(readings, &r)
	}
	err = rows.Err()
	return
}

// Close closes the database connections. It is safe to call multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
