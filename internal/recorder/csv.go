// Package recorder writes the append-only per-sonde CSV record: one row per
// accepted packet, header written once on file creation, rows never rewritten
// or deleted.
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/resonde/groundstation/internal/telemetry"
)

// FileName is the per-sonde CSV file name, kept stable for downstream
// tooling.
const FileName = "processed_data.csv"

var header = []string{
	"timestamp", "packet_counter", "device_time",
	"lat", "lon", "alt_m", "vspeed_ms", "espeed_ms", "nspeed_ms",
	"satellites", "temp_c", "rh_percent", "battery_v", "rssi_dbm",
	"pressure_hpa", "dewpoint_c", "mixing_ratio", "theta", "theta_e",
}

type sondeFile struct {
	f *os.File
	w *csv.Writer
}

// CSV appends processed readings to one CSV file per sonde under a data
// directory, laid out as <dir>/<serial>/processed_data.csv.
type CSV struct {
	dir string

	mu    sync.Mutex
	files map[uint32]*sondeFile
}

// NewCSV creates a CSV recorder rooted at dir.
func NewCSV(dir string) *CSV {
	return &CSV{
		dir:   dir,
		files: make(map[uint32]*sondeFile),
	}
}

// Path returns the CSV file path for a sonde serial.
func (c *CSV) Path(serial uint32) string {
	return filepath.Join(c.dir, strconv.FormatUint(uint64(serial), 10), FileName)
}

// Record appends one reading to the sonde's CSV file, creating directory,
// file and header on first sight of the serial.
func (c *CSV) Record(r *telemetry.ProcessedReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sf, err := c.file(r.Serial)
	if err != nil {
		return err
	}

	if err = sf.w.Write(row(r)); err != nil {
		return fmt.Errorf("writing reading for sonde %d: %w", r.Serial, err)
	}

	sf.w.Flush()
	if err = sf.w.Error(); err != nil {
		return fmt.Errorf("flushing readings for sonde %d: %w", r.Serial, err)
	}
	return nil
}

// Close flushes and closes all open files.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for serial, sf := range c.files {
		sf.w.Flush()
		if err := sf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing file for sonde %d: %w", serial, err)
		}
		delete(c.files, serial)
	}
	return firstErr
}

func (c *CSV) file(serial uint32) (*sondeFile, error) {
	if sf, ok := c.files[serial]; ok {
		return sf, nil
	}

	path := c.Path(serial)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sonde directory: %w", err)
	}

	// Header only when the file does not exist yet; a restart keeps
	// appending to the same record.
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening CSV for sonde %d: %w", serial, err)
	}

	sf := &sondeFile{f: f, w: csv.NewWriter(f)}
	if writeHeader {
		if err = sf.w.Write(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing header for sonde %d: %w", serial, err)
		}
		sf.w.Flush()
	}

	c.files[serial] = sf
	return sf, nil
}

func row(r *telemetry.ProcessedReading) []string {
	return []string{
		r.IngestedAt.UTC().Format(time.RFC3339),
		strconv.FormatUint(uint64(r.Counter), 10),
		r.DeviceTime.UTC().Format(time.RFC3339),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatFloat(r.Altitude),
		formatFloat(r.VerticalSpeed),
		formatFloat(r.EastSpeed),
		formatFloat(r.NorthSpeed),
		strconv.Itoa(r.Satellites),
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		formatFloat(r.Battery),
		strconv.Itoa(r.RSSI),
		formatFloat(r.Pressure),
		formatFloat(r.Dewpoint),
		formatFloat(r.MixingRatio),
		formatFloat(r.Theta),
		formatFloat(r.ThetaE),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
