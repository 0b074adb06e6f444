// Package pipeline wires the stateless packet decoder to the per-sonde
// session state and fans accepted readings out to registered sinks. Process*
// methods are the single entry point of the ingestion core; they are safe to
// call from any number of concurrent sources.
package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/telemetry"
)

// Sink consumes processed readings after each accepted packet. Consume must
// not block: slow consumers wrap themselves in an AsyncSink so that
// persistence or broadcast latency never stalls a sonde's packet sequence.
type Sink interface {
	Consume(r *telemetry.ProcessedReading)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(r *telemetry.ProcessedReading)

func (f SinkFunc) Consume(r *telemetry.ProcessedReading) { f(r) }

// WithSink registers an output sink with the pipeline.
func WithSink(s Sink) func(*Pipeline) {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, s)
	}
}

// WithLogger sets the logger for the pipeline.
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides the wall clock used for ingestion timestamps.
func WithClock(now func() time.Time) func(*Pipeline) {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline orchestrates decode, deduplication, pressure integration and
// derived-quantity computation for incoming raw records.
type Pipeline struct {
	decoder  *telemetry.Decoder
	registry *session.Registry
	sinks    []Sink
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Pipeline around the given decoder and session registry.
func New(decoder *telemetry.Decoder, registry *session.Registry, options ...func(*Pipeline)) *Pipeline {
	p := Pipeline{
		decoder:  decoder,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// ProcessLine ingests one delimited telemetry line.
func (p *Pipeline) ProcessLine(line string) (*telemetry.ProcessedReading, error) {
	raw, err := p.decoder.DecodeLine(line)
	if err != nil {
		return nil, err
	}
	return p.process(raw)
}

// ProcessFields ingests one pre-split telemetry record.
func (p *Pipeline) ProcessFields(fields []string) (*telemetry.ProcessedReading, error) {
	raw, err := p.decoder.DecodeFields(fields)
	if err != nil {
		return nil, err
	}
	return p.process(raw)
}

// ProcessUpload ingests one keyed record as relayed by a receiver.
func (p *Pipeline) ProcessUpload(record map[string]any) (*telemetry.ProcessedReading, error) {
	raw, err := p.decoder.DecodeUpload(record)
	if err != nil {
		return nil, err
	}
	return p.process(raw)
}

// process runs the per-sonde stage and the sink fan-out. A duplicate packet
// yields (nil, nil): rejected, nothing mutated, not an error.
func (p *Pipeline) process(raw *telemetry.RawReading) (*telemetry.ProcessedReading, error) {
	sess := p.registry.GetOrCreate(raw.Serial)

	processed, err := sess.Ingest(raw, p.now())
	if err != nil {
		return nil, err
	}
	if processed == nil {
		p.logger.Debug("duplicate packet ignored",
			slog.Uint64("serial", uint64(raw.Serial)),
			slog.Uint64("counter", uint64(raw.Counter)),
		)
		return nil, nil
	}

	// The reading counts as ingested from here on; sink failures are the
	// sinks' own problem and never unwind session state.
	for _, sink := range p.sinks {
		sink.Consume(processed)
	}

	return processed, nil
}

// IsMalformed reports whether err represents a dropped, undecodable packet.
// Such errors are logged by the caller and must never abort an ingestion
// loop.
func IsMalformed(err error) bool {
	var malformed *telemetry.MalformedPacketError
	return errors.As(err, &malformed)
}
