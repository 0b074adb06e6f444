package pipeline

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/resonde/groundstation/internal/telemetry"
)

// DefaultQueueSize is the default depth of an AsyncSink queue.
const DefaultQueueSize = 256

// AsyncSink decouples a blocking consumer (database, CSV file, broadcast
// socket) from the per-sonde processing sequence through a bounded queue.
// When the queue is full, readings are dropped and counted rather than
// letting a slow consumer stall ingestion.
type AsyncSink struct {
	name    string
	fn      func(r *telemetry.ProcessedReading) error
	queue   chan *telemetry.ProcessedReading
	logger  *slog.Logger
	dropped atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsync starts an AsyncSink draining the queue into fn from a single
// worker goroutine. queueSize <= 0 falls back to DefaultQueueSize. The
// returned sink must be closed to flush queued readings on shutdown.
func NewAsync(name string, queueSize int, fn func(r *telemetry.ProcessedReading) error, logger *slog.Logger) *AsyncSink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := AsyncSink{
		name:   name,
		fn:     fn,
		queue:  make(chan *telemetry.ProcessedReading, queueSize),
		logger: logger.With(slog.String("sink", name)),
	}

	s.wg.Add(1)
	go s.drain()

	return &s
}

// Consume enqueues the reading without blocking. Full queue drops the
// reading.
func (s *AsyncSink) Consume(r *telemetry.ProcessedReading) {
	select {
	case s.queue <- r:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("sink queue full, dropping readings",
				slog.Uint64("dropped", s.dropped.Load()),
			)
		}
	}
}

// Dropped returns the number of readings dropped due to a full queue.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close blocks until the queue is drained. Producers must be stopped before
// Close is called.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *AsyncSink) drain() {
	defer s.wg.Done()

	for r := range s.queue {
		if err := s.fn(r); err != nil {
			s.logger.Error(err.Error(),
				slog.Uint64("serial", uint64(r.Serial)),
				slog.Uint64("counter", uint64(r.Counter)),
			)
		}
	}
}
