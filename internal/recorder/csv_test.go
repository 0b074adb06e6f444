package recorder

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/resonde/groundstation/internal/telemetry"
)

func testReading(serial, counter uint32) *telemetry.ProcessedReading {
	return &telemetry.ProcessedReading{
		RawReading: telemetry.RawReading{
			Serial:      serial,
			Counter:     counter,
			DeviceTime:  time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
			Latitude:    50.736239,
			Longitude:   7.123456,
			Altitude:    1523,
			Satellites:  9,
			Temperature: 15,
			Humidity:    56.5,
			Battery:     2.9,
			RSSI:        -97,
		},
		Pressure:   1001.25,
		Dewpoint:   6.1,
		IngestedAt: time.Date(2026, 8, 31, 12, 0, 1, 0, time.UTC),
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows
}

func TestCSV_Record(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(dir)

	if err := c.Record(testReading(12345, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record(testReading(12345, 2)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, c.Path(12345))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 readings", len(rows))
	}
	if diff := cmp.Diff(header, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][1] != "1" || rows[2][1] != "2" {
		t.Errorf("counters = %s, %s, want 1, 2", rows[1][1], rows[2][1])
	}
	if rows[1][0] != "2026-08-31T12:00:01Z" {
		t.Errorf("timestamp = %s, want 2026-08-31T12:00:01Z", rows[1][0])
	}
}

func TestCSV_RestartAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()

	c := NewCSV(dir)
	if err := c.Record(testReading(777, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A new recorder over the same directory keeps appending to the record.
	c = NewCSV(dir)
	if err := c.Record(testReading(777, 2)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, c.Path(777))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 readings", len(rows))
	}
	if rows[1][0] == header[0] || rows[2][0] == header[0] {
		t.Error("found a second header row after restart")
	}
}

func TestCSV_OneFilePerSonde(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(dir)
	defer c.Close()

	if err := c.Record(testReading(111, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record(testReading(222, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if c.Path(111) == c.Path(222) {
		t.Fatal("distinct sondes share a CSV path")
	}
	for _, serial := range []uint32{111, 222} {
		rows := readRows(t, c.Path(serial))
		if len(rows) != 2 {
			t.Errorf("sonde %d: got %d rows, want header + 1 reading", serial, len(rows))
		}
	}
}

func TestCSV_RowWidthMatchesHeader(t *testing.T) {
	got := row(testReading(1, 1))
	if len(got) != len(header) {
		t.Fatalf("row has %d columns, header has %d", len(got), len(header))
	}
}
