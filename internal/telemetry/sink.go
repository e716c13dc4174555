package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

const writeTimeout = 5 * time.Second

// Recorder is the persistence boundary the sink writes through.
type Recorder interface {
	Insert(ctx context.Context, rec engine.TelemetryRecord) error
}

// AsyncSink buffers telemetry records and writes them off the turn hot
// path. Records are dropped with a warning when the buffer is full; turn
// processing never blocks on telemetry.
type AsyncSink struct {
	store  Recorder
	logger *logging.Logger
	buf    chan engine.TelemetryRecord
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ engine.TelemetrySink = (*AsyncSink)(nil)

// NewAsyncSink starts the background writer.
func NewAsyncSink(store Recorder, bufferSize int, logger *logging.Logger) *AsyncSink {
	if store == nil {
		panic("telemetry: store cannot be nil")
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &AsyncSink{
		store:  store,
		logger: logger,
		buf:    make(chan engine.TelemetryRecord, bufferSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues one record without blocking.
func (s *AsyncSink) Record(_ context.Context, rec engine.TelemetryRecord) {
	select {
	case s.buf <- rec:
	default:
		s.logger.Warn("telemetry buffer full, dropping record", "sender", rec.Sender)
	}
}

// Close drains the buffer and stops the writer.
func (s *AsyncSink) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.buf:
			s.write(rec)
		case <-s.done:
			for {
				select {
				case rec := <-s.buf:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) write(rec engine.TelemetryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.Error("failed to persist telemetry record", "sender", rec.Sender, "error", err)
	}
}
