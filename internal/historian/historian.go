// Package historian drains the battle audit queue into Postgres in batches.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/battles/internal/events"
	"github.com/sirupsen/logrus"
)

// Queue yields audit records. cache.AuditQueue implements it over a Redis list.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (events.AuditRecord, bool, error)
}

// Sink persists a batch of records. database.Store implements it.
type Sink interface {
	InsertEventLogs(ctx context.Context, records []events.AuditRecord) error
}

// Service accumulates records popped from the queue and flushes them when the batch is full
// or the flush delay elapses.
type Service struct {
	queue      Queue
	sink       Sink
	batchSize  int
	flushDelay time.Duration
	popTimeout time.Duration
	log        *logrus.Entry

	batchMu sync.Mutex
	batch   []events.AuditRecord
}

// New builds a Service.
func New(queue Queue, sink Sink, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Service{
		queue:      queue,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popTimeout: 3 * time.Second,
		log:        logger.WithField("component", "historian"),
		batch:      make([]events.AuditRecord, 0, batchSize),
	}
}

// Run reads the queue until ctx is cancelled, then flushes what is left.
func (hs *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	hs.log.Info("historian started")
	for {
		select {
		case <-ctx.Done():
			// ctx is gone; the final flush gets its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			hs.flush(flushCtx)
			cancel()
			hs.log.Info("historian stopped")
			return

		case <-ticker.C:
			hs.flush(ctx)

		default:
			rec, ok, err := hs.queue.Pop(ctx, hs.popTimeout)
			if err != nil {
				if ctx.Err() == nil {
					hs.log.WithError(err).Error("failed to pop audit record")
				}
				continue
			}
			if !ok {
				continue
			}
			hs.append(ctx, rec)
		}
	}
}

// append adds a record to the in-memory batch and flushes if the threshold is reached.
func (hs *Service) append(ctx context.Context, rec events.AuditRecord) {
	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.batchSize
	hs.batchMu.Unlock()

	if full {
		hs.flush(ctx)
	}
}

// flush writes the current batch. A failed batch is put back so the next flush retries it.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := make([]events.AuditRecord, len(hs.batch))
	copy(pending, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := hs.sink.InsertEventLogs(ctx, pending); err != nil {
		hs.log.WithError(err).WithField("records", len(pending)).Error("failed to flush audit batch")
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return
	}
	hs.log.WithField("records", len(pending)).Debug("flushed audit batch")
}
