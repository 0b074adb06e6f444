// Package ingest feeds raw telemetry records from receiver transports into
// the ingestion pipeline.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"go.bug.st/serial"

	"github.com/resonde/groundstation/internal/pipeline"
)

const (
	// DefaultBaudRate matches the receiver firmware's serial console.
	DefaultBaudRate = 115200

	// ParseErrorsThreshold defines the number of consecutive malformed
	// lines allowed before the source gives up. Occasional RF garbage is
	// normal; an endless stream of it means the port is misconfigured.
	ParseErrorsThreshold = 5
)

// ErrTooManyParseErrors is returned when the number of consecutive malformed
// lines exceeds the threshold.
var ErrTooManyParseErrors = errors.New("too many consecutive malformed lines")

// SerialConfig describes the local receiver serial port.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
}

// WithLogger sets the logger for the source.
func WithLogger(logger *slog.Logger) func(*SerialSource) {
	return func(s *SerialSource) {
		s.logger = logger.With(slog.String("port", s.portName))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors.
func WithParseErrorsThreshold(threshold uint8) func(*SerialSource) {
	return func(s *SerialSource) {
		s.parseErrorsThreshold = threshold
	}
}

// SerialSource reads telemetry lines from a receiver attached over a serial
// port and feeds them to the pipeline.
type SerialSource struct {
	portName string
	port     io.ReadCloser
	pipeline *pipeline.Pipeline

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// OpenSerial opens the configured serial port and returns a source reading
// from it.
func OpenSerial(config SerialConfig, p *pipeline.Pipeline, options ...func(*SerialSource)) (*SerialSource, error) {
	baudRate := config.BaudRate
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(config.Port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", config.Port, err)
	}

	return newSerialSource(config.Port, port, p, options...), nil
}

// newSerialSource is split out so tests can feed an arbitrary reader.
func newSerialSource(portName string, port io.ReadCloser, p *pipeline.Pipeline, options ...func(*SerialSource)) *SerialSource {
	s := SerialSource{
		portName:             portName,
		port:                 port,
		pipeline:             p,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run reads lines until the context is cancelled or the port fails. Malformed
// lines are logged and dropped; they only abort the source once
// parseErrorsThreshold of them arrive in a row.
func (s *SerialSource) Run(ctx context.Context) error {
	// Closing the port is the only way to unblock a pending read.
	go func() {
		<-ctx.Done()
		_ = s.port.Close()
	}()

	s.logger.Info("reading telemetry...")

	var parseErrors uint8

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		processed, err := s.pipeline.ProcessLine(line)
		switch {
		case err == nil:
			parseErrors = 0
			if processed != nil {
				s.logger.Info("packet accepted",
					slog.Uint64("serial", uint64(processed.Serial)),
					slog.Uint64("counter", uint64(processed.Counter)),
					slog.Float64("altitude", processed.Altitude),
					slog.Float64("pressure", processed.Pressure),
				)
			}

		case pipeline.IsMalformed(err):
			parseErrors++
			s.logger.Warn(fmt.Sprintf("dropping line: %s", err), slog.String("line", line))

			if parseErrors >= s.parseErrorsThreshold {
				return ErrTooManyParseErrors
			}

		default:
			// Integration domain errors: the sample is rejected but
			// the stream stays up.
			parseErrors = 0
			s.logger.Error(err.Error(), slog.String("line", line))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil &&
		!errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("reading serial port: %w", err)
	}

	s.logger.Info("telemetry stream closed")
	return nil
}
