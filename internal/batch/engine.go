package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deliverer performs the outbound HTTPS POST for a merged batch. It is
// fire-and-forget from the Engine's perspective: a failure is returned
// to the Engine, which logs it; it is never returned to the producer
// and never retried.
type Deliverer interface {
	Deliver(key DestinationKey, merged Payload) error
}

// Engine owns one Registry, the outbound Deliverer, and the logger for
// one Transport Module instance. It replaces the original's
// process-wide mutable maps: callers construct as many independent
// Engines as they like (one per Caddy Provision, one per test).
type Engine struct {
	registry   *Registry
	deliverer  Deliverer
	logger     *zap.Logger
	embedLimit int
}

// NewEngine constructs an Engine with the given sliding-window flush
// duration, per-batch embed cap, outbound deliverer, and logger.
func NewEngine(deliverDuration time.Duration, embedLimit int, deliverer Deliverer, logger *zap.Logger) *Engine {
	e := &Engine{
		deliverer:  deliverer,
		logger:     logger,
		embedLimit: embedLimit,
	}
	e.registry = NewRegistry(deliverDuration, e.onExpire)
	return e
}

// Ingest is the Ingest Handler contract: validate the capacity rule,
// insert-or-append, and return the post-insertion snapshot for the
// synchronous producer acknowledgement.
//
// If the payload alone exceeds embedLimit it is rejected synchronously
// (capacity-invalid, code 102) — such a request could never be
// delivered regardless of batching. If appending it to the currently
// open batch would push the total past embedLimit, the existing batch
// is taken and handed to an async delivery task, and insertion
// restarts against a fresh (empty) batch — which always has room, so
// this recurses at most once. A batch that reaches the limit exactly
// is not split: capacity is used fully before a flush is forced.
func (e *Engine) Ingest(key DestinationKey, p Payload) (Batch, error) {
	requestEmbeds := p.EmbedCount()
	if requestEmbeds > e.embedLimit {
		return Batch{}, newTaxonomyError(400, ErrCodeCapacityInvalid,
			fmt.Sprintf("payload has %d embeds, exceeding the limit of %d", requestEmbeds, e.embedLimit))
	}

	if pending, open := e.registry.PendingEmbedCount(key); open && pending+requestEmbeds > e.embedLimit {
		if displaced, ok := e.registry.Take(key); ok {
			e.logger.Debug("capacity trigger: flushing batch early",
				zap.String("batch_id", key.BatchID()),
				zap.Int("embed_count", displaced.EmbedCount()))
			e.registry.GoDeliver(displaced)
		}
	}

	snapshot, ok := e.registry.InsertOrAppend(key, p)
	if !ok {
		return Batch{}, newTaxonomyError(503, 0, "service is shutting down")
	}
	return snapshot, nil
}

// Shutdown drains the Registry: every outstanding batch is taken and
// delivered, and Shutdown does not return until all of those
// deliveries complete.
func (e *Engine) Shutdown() {
	e.registry.Shutdown()
}

// OpenBatchCount reports the number of open batches; used by tests to
// check the post-shutdown-empty invariant.
func (e *Engine) OpenBatchCount() int {
	return e.registry.Len()
}

// onExpire is the Registry's flush callback: merge, then deliver.
// Called outside the Registry's lock, from whichever goroutine won the
// Take race (timer, capacity trigger, or shutdown).
func (e *Engine) onExpire(b Batch) {
	requestID := uuid.NewString()
	logger := e.logger.With(
		zap.String("request_id", requestID),
		zap.String("batch_id", b.Key.BatchID()),
		zap.Int("batch_size", len(b.Payloads)),
	)

	merged := Merge(b.Payloads)
	if err := e.deliverer.Deliver(b.Key, merged); err != nil {
		logger.Error("webhook delivery failed", zap.Error(err))
		return
	}
	logger.Debug("webhook delivered")
}
