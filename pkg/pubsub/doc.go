// Package pubsub implements an asynchronous publication dispatcher.
//
// Callers enqueue publications from any goroutine with Dispatcher.Send. A single
// background worker drains the queue and forwards publications to a broker through
// the Client interface, one Client.Publish call per batch.
//
// Batching
//   - At the start of every iteration the worker samples the queue depth N.
//   - N == 0: the worker blocks until one publication arrives and dispatches it alone.
//   - N > 0: the worker takes the N publications that are already pending and
//     dispatches them as one batch.
//
// Batch size follows load: idle producers get per-publication dispatch, busy producers
// get large batches, without a timer or size threshold.
//
// Delivery
//
// Send returning nil means the publication was accepted into the queue, not that it
// was delivered. Dispatch failures are logged and counted, and the batch is dropped;
// there is no retry. The queue is unbounded, so a slow broker grows memory instead of
// blocking producers.
//
// Shutdown
//
// Shutdown closes the queue to new publications, waits until the worker has
// dispatched everything already enqueued (including a partially drained batch) and
// then releases the client. It has no timeout and is idempotent.
package pubsub
