// Package audit records the append-only change history of work items and
// sprints.
//
// Records are handed to a Recorder after the mutation that produced them has
// committed. The Recorder writes them from its own goroutine, so a failing or
// slow history table never fails or delays the mutation itself.
package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sprintboard/internal/models"
)

// Sink persists history records.
type Sink interface {
	AppendHistory(ctx context.Context, records []models.HistoryRecord) error
}

// DefaultBufferSize is the number of pending batches a Recorder holds.
const DefaultBufferSize = 256

const writeTimeout = 5 * time.Second

type batch struct {
	records []models.HistoryRecord
	flushed chan struct{}
}

// Recorder queues history batches and writes them to a Sink in order.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	queue  chan batch
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithBufferSize sets how many batches may wait for the writer.
func WithBufferSize(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.queue = make(chan batch, size)
		}
	}
}

// WithLogger sets the logger used for dropped or failed writes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder starts the writer goroutine. Call Close to stop it.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:  make(chan batch, DefaultBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Record queues one batch. It never blocks: when the queue is full or the
// recorder is closed the batch is dropped and a warning is logged. Records
// without a change set share a freshly generated one.
func (r *Recorder) Record(records ...models.HistoryRecord) {
	if len(records) == 0 {
		return
	}
	changeSet := uuid.NewString()
	out := make([]models.HistoryRecord, len(records))
	for i, rec := range records {
		if rec.ChangeSet == "" {
			rec.ChangeSet = changeSet
		}
		out[i] = rec
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("history dropped: recorder closed", slog.Int("records", len(out)))
		return
	}
	select {
	case r.queue <- batch{records: out}:
	default:
		r.logger.Warn("history dropped: queue full",
			slog.Int("records", len(out)),
			slog.String("entity_type", out[0].EntityType),
			slog.Int64("entity_id", out[0].EntityID))
	}
}

// Flush waits until every batch queued before the call has been written or
// has failed.
func (r *Recorder) Flush(ctx context.Context) error {
	marker := batch{flushed: make(chan struct{})}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- marker:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for b := range r.queue {
		if b.flushed != nil {
			close(b.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.AppendHistory(ctx, b.records); err != nil {
			r.logger.Error("history write failed",
				slog.Int("records", len(b.records)),
				slog.String("change_set", b.records[0].ChangeSet),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}
