package pubsub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
)

// kindError is implemented by client errors that classify themselves for metrics.
type kindError interface {
	ErrorKind() string
}

// worker is the single consumer of the queue. It stops once the queue is closed
// and fully drained.
type worker struct {
	queue   *queue
	client  Client
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	stats   *stats

	// sampled, when set, runs right after next samples the queue depth.
	sampled func(depth int)

	done chan struct{}
}

func newWorker(q *queue, client Client, log *zap.SugaredLogger, m *metrics.Metrics, s *stats) *worker {
	return &worker{
		queue:   q,
		client:  client,
		log:     log,
		metrics: m,
		stats:   s,
		done:    make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		batch, ok := w.next()
		if len(batch) > 0 {
			w.dispatch(ctx, batch)
		}
		if !ok {
			w.log.Debug("queue closed and drained, worker stopped")
			return
		}
	}
}

// next builds the next batch. The batch never holds more publications than were
// queued when the iteration started, except for the single publication taken after
// waiting on an empty queue. The second return value is false once the queue is
// closed and there is nothing left to dispatch after this batch.
func (w *worker) next() ([]Publication, bool) {
	depth := w.queue.len()
	w.metrics.SetQueueDepth(depth)
	if w.sampled != nil {
		w.sampled(depth)
	}

	if depth == 0 {
		p, ok := w.queue.recv()
		if !ok {
			return nil, false
		}
		return []Publication{p}, true
	}

	// The consumer is the only reader, so all depth items are still there.
	return w.queue.drain(depth), true
}

func (w *worker) dispatch(ctx context.Context, batch []Publication) {
	start := time.Now()
	err := w.client.Publish(ctx, batch)
	elapsed := time.Since(start)

	if err != nil {
		kind := metrics.ErrKindUnknown
		var ke kindError
		if errors.As(err, &ke) {
			kind = ke.ErrorKind()
		}
		w.stats.failedBatches.Add(1)
		w.metrics.RecordDispatch(len(batch), err, kind, elapsed.Seconds())
		w.log.Errorw("publication failed",
			"error", err,
			"kind", kind,
			"batchSize", len(batch),
		)
		return
	}

	w.stats.dispatched.Add(uint64(len(batch)))
	w.stats.batches.Add(1)
	w.metrics.RecordDispatch(len(batch), nil, "", elapsed.Seconds())
	w.log.Debugw("batch published", "batchSize", len(batch), "duration", elapsed)
}
