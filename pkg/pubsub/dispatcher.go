package pubsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
)

// Options configures a Dispatcher.
type Options struct {
	// Address is the broker endpoint handed to the ClientFactory.
	Address string
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Enqueued      uint64 // publications accepted by Send
	Rejected      uint64 // publications rejected after Shutdown
	Dispatched    uint64 // publications in batches the client accepted
	Batches       uint64 // batches the client accepted
	FailedBatches uint64 // batches the client failed
	QueueDepth    int    // publications currently queued
}

type stats struct {
	enqueued      atomic.Uint64
	rejected      atomic.Uint64
	dispatched    atomic.Uint64
	batches       atomic.Uint64
	failedBatches atomic.Uint64
}

// Dispatcher accepts publications from any goroutine and forwards them to a broker
// from a single background worker.
//
// Shutdown MUST be called to drain the queue and release the client.
type Dispatcher struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	client  Client
	queue   *queue
	worker  *worker
	stats   stats

	once   sync.Once
	closed atomic.Bool
}

// New constructs the broker client through newClient and starts the worker.
//
// The production clients connect lazily, so an unreachable broker does not fail
// New; it surfaces later as dispatch errors in the log. m may be nil.
func New(opts Options, newClient ClientFactory, log *zap.SugaredLogger, m *metrics.Metrics) (*Dispatcher, error) {
	if newClient == nil {
		return nil, fmt.Errorf("%w: nil client factory", ErrClientConstruction)
	}

	client, err := newClient(context.Background(), opts.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientConstruction, err)
	}
	return NewWithClient(client, log, m), nil
}

// NewWithClient starts a Dispatcher around an already constructed client.
func NewWithClient(client Client, log *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		log:     log,
		metrics: m,
		client:  client,
		queue:   newQueue(),
	}
	d.worker = newWorker(d.queue, client, log, m, &d.stats)

	// The broker call has no deadline; Shutdown waits for it however long it takes.
	go d.worker.run(context.Background())

	log.Info("dispatcher started")
	return d
}

// Send enqueues p for asynchronous delivery. It never blocks on the broker.
//
// A nil error means p was accepted into the queue, not that it was delivered.
// Send returns ErrDispatcherClosed once Shutdown has been called.
func (d *Dispatcher) Send(p Publication) error {
	if err := d.queue.push(p); err != nil {
		d.stats.rejected.Add(1)
		d.metrics.IncEnqueueRejected()
		return err
	}
	d.stats.enqueued.Add(1)
	d.metrics.IncEnqueued()
	return nil
}

// Shutdown stops accepting publications and blocks until every publication
// enqueued before the call has been handed to the client and the worker exited.
// The client is then closed if it implements io.Closer.
//
// There is no timeout: a broker call that never returns blocks Shutdown.
// Calling Shutdown more than once is a no-op.
func (d *Dispatcher) Shutdown() {
	d.once.Do(func() {
		d.log.Info("shutting down dispatcher")
		d.closed.Store(true)
		d.queue.close()

		<-d.worker.done

		if c, ok := d.client.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.log.Warnw("failed to close broker client", "error", err)
			}
		}

		s := d.Stats()
		d.log.Infow("dispatcher stopped",
			"enqueued", s.Enqueued,
			"dispatched", s.Dispatched,
			"batches", s.Batches,
			"failedBatches", s.FailedBatches,
		)
	})
}

// Closed reports whether Shutdown has been called.
func (d *Dispatcher) Closed() bool {
	return d.closed.Load()
}

// Healthy returns ErrDispatcherClosed after Shutdown and nil otherwise.
func (d *Dispatcher) Healthy() error {
	if d.Closed() {
		return ErrDispatcherClosed
	}
	return nil
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:      d.stats.enqueued.Load(),
		Rejected:      d.stats.rejected.Load(),
		Dispatched:    d.stats.dispatched.Load(),
		Batches:       d.stats.batches.Load(),
		FailedBatches: d.stats.failedBatches.Load(),
		QueueDepth:    d.queue.len(),
	}
}

// IsClosed reports whether err is the error returned by Send after Shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, ErrDispatcherClosed)
}
