package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonde/groundstation/internal/api"
	"github.com/resonde/groundstation/internal/pipeline"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/storage"
	"github.com/resonde/groundstation/internal/telemetry"
)

type stubFlights struct {
	flights []storage.Flight
	err     error
}

func (s *stubFlights) Flights(context.Context) ([]storage.Flight, error) {
	return s.flights, s.err
}

type testServer struct {
	handler  http.Handler
	registry *session.Registry
	resets   []uint32
}

func newTestServer(t *testing.T, cfg api.Config) *testServer {
	t.Helper()

	decoder, err := telemetry.NewDecoder(telemetry.FieldCountStandard)
	require.NoError(t, err)

	ts := &testServer{
		registry: session.NewRegistry(session.Config{GroundPressure: 1013.25, WindowSize: 10}),
	}

	cfg.Registry = ts.registry
	cfg.Pipeline = pipeline.New(decoder, ts.registry)
	if cfg.OnReset == nil {
		cfg.OnReset = func(serial uint32) {
			ts.resets = append(ts.resets, serial)
		}
	}

	ts.handler = api.NewServer(cfg).Handler()
	return ts
}

func uploadRecord(serial, counter uint32, overrides map[string]any) map[string]any {
	record := map[string]any{
		"sn": serial, "counter": counter, "time": 1717171717,
		"lat": 507362390, "lon": 71234560, "alt": 0,
		"vSpeed": 0, "eSpeed": 0, "nSpeed": 0,
		"sats": 9, "temp": 4800, "rh": 100,
		"battery": 200, "rssi": -97,
	}
	for k, v := range overrides {
		record[k] = v
	}
	return record
}

func (ts *testServer) upload(t *testing.T, record map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(record)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHandleUpload(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	w := ts.upload(t, uploadRecord(12345, 1, nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, resp["success"])
	require.Contains(t, resp, "processed")

	processed := resp["processed"].(map[string]any)
	assert.EqualValues(t, 12345, processed["serial_number"])
	assert.EqualValues(t, 1013.25, processed["pressure_hpa"])

	sess, ok := ts.registry.Get(12345)
	require.True(t, ok)
	assert.Equal(t, 1, sess.Len())
}

func TestHandleUpload_Duplicate(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(1, 7, nil)).Code)

	w := ts.upload(t, uploadRecord(1, 7, nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, "duplicate", resp["status"])
	assert.NotContains(t, resp, "processed")

	sess, _ := ts.registry.Get(1)
	assert.Equal(t, 1, sess.Len(), "duplicate must not extend history")
}

func TestHandleUpload_BadRequests(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		record := uploadRecord(1, 1, nil)
		delete(record, "temp")
		w := ts.upload(t, record)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		resp := decodeBody[map[string]string](t, w)
		assert.Contains(t, resp["error"], "temp")
	})

	t.Run("non-numeric field", func(t *testing.T) {
		w := ts.upload(t, uploadRecord(1, 1, map[string]any{"alt": "high"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleUpload_IntegrationDomainError(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	// Seed sonde 5 at altitude zero, then report warm air at an absurd
	// altitude; the hypsometric step collapses to zero pressure and the
	// sample is rejected as unprocessable.
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(5, 1, nil)).Code)

	w := ts.upload(t, uploadRecord(5, 2, map[string]any{"alt": 5000000000000, "temp": 9600}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// The trajectory is preserved: the next plausible sample continues from
	// the seed state.
	w = ts.upload(t, uploadRecord(5, 3, map[string]any{"alt": 100000}))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]any](t, w)
	require.Contains(t, resp, "processed")
}

func TestHandleSondes(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(200, 1, nil)).Code)
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(100, 1, nil)).Code)
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(100, 2, map[string]any{"alt": 50000})).Code)

	w := ts.get("/api/sondes")
	require.Equal(t, http.StatusOK, w.Code)

	sondes := decodeBody[[]map[string]any](t, w)
	require.Len(t, sondes, 2)
	assert.EqualValues(t, 100, sondes[0]["serial_number"])
	assert.EqualValues(t, 2, sondes[0]["packet_count"])
	assert.EqualValues(t, 200, sondes[1]["serial_number"])
	assert.NotEmpty(t, sondes[0]["last_update"])
}

func TestHandleLatestAndData(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(42, 1, nil)).Code)
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(42, 2, map[string]any{"alt": 100000})).Code)

	w := ts.get("/api/sondes/42/latest")
	require.Equal(t, http.StatusOK, w.Code)
	latest := decodeBody[map[string]any](t, w)
	assert.EqualValues(t, 2, latest["packet_counter"])

	w = ts.get("/api/sondes/42/data")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody[[]map[string]any](t, w)
	require.Len(t, data, 2)
	assert.EqualValues(t, 1, data[0]["packet_counter"])
	assert.EqualValues(t, 2, data[1]["packet_counter"])
}

func TestHandleSondes_UnknownSerial(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	for _, path := range []string{
		"/api/sondes/999/latest",
		"/api/sondes/999/data",
		"/api/sondes/999/track",
	} {
		assert.Equal(t, http.StatusNotFound, ts.get(path).Code, path)
	}

	assert.Equal(t, http.StatusBadRequest, ts.get("/api/sondes/banana/latest").Code)
}

func TestHandleTrack_FiltersNoFixReadings(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	// First packet before GPS fix reports (0, 0).
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(9, 1, map[string]any{"lat": 0, "lon": 0})).Code)
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(9, 2, map[string]any{"alt": 100000})).Code)

	w := ts.get("/api/sondes/9/track")
	require.Equal(t, http.StatusOK, w.Code)

	track := decodeBody[[][2]float64](t, w)
	require.Len(t, track, 1)
	assert.InDelta(t, 50.736239, track[0][0], 1e-9)
	assert.InDelta(t, 7.123456, track[0][1], 1e-9)
}

func TestHandleReset(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(7, 1, nil)).Code)
	require.Equal(t, http.StatusOK, ts.upload(t, uploadRecord(7, 2, map[string]any{"alt": 100000})).Code)

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sondes/7/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint32{7}, ts.resets)

	// The counter window and integrator start over for the new launch.
	resp := ts.upload(t, uploadRecord(7, 1, map[string]any{"alt": 100000}))
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody[map[string]any](t, resp)
	require.Contains(t, body, "processed")
	processed := body["processed"].(map[string]any)
	assert.EqualValues(t, 1013.25, processed["pressure_hpa"])
}

func TestHandleFlights(t *testing.T) {
	startedAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	t.Run("lists flights", func(t *testing.T) {
		ts := newTestServer(t, api.Config{Flights: &stubFlights{flights: []storage.Flight{
			{ID: 1, Serial: 12345, StartedAt: startedAt, GroundPressure: 1013.25, Readings: 42},
		}}})

		w := ts.get("/api/flights")
		require.Equal(t, http.StatusOK, w.Code)

		flights := decodeBody[[]map[string]any](t, w)
		require.Len(t, flights, 1)
		assert.EqualValues(t, 12345, flights[0]["serial_number"])
		assert.EqualValues(t, 42, flights[0]["readings"])
	})

	t.Run("empty archive is an empty list", func(t *testing.T) {
		ts := newTestServer(t, api.Config{Flights: &stubFlights{}})

		w := ts.get("/api/flights")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]\n", w.Body.String())
	})

	t.Run("disabled archive", func(t *testing.T) {
		ts := newTestServer(t, api.Config{})
		assert.Equal(t, http.StatusNotFound, ts.get("/api/flights").Code)
	})
}

func TestHandleDownloadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,packet_counter\n"), 0o644))

	ts := newTestServer(t, api.Config{CSVPath: func(serial uint32) string {
		if serial == 12345 {
			return path
		}
		return filepath.Join(dir, "missing.csv")
	}})

	w := ts.get("/api/sondes/12345/download/csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sonde_12345_data.csv")
	assert.Contains(t, w.Body.String(), "packet_counter")

	assert.Equal(t, http.StatusNotFound, ts.get("/api/sondes/999/download/csv").Code)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, api.Config{})

	w := ts.get("/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]string](t, w)
	assert.Equal(t, "ok", resp["status"])
}
