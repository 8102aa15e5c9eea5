package pubsub

import "sync"

// queue is an unbounded FIFO with many producers and a single consumer.
//
// Once closed, push is rejected but items already queued stay available to the
// consumer until drained.
type queue struct {
	mu     sync.Mutex
	items  []Publication
	closed bool

	// ready holds at most one pending wake-up for the consumer.
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(p Publication) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDispatcherClosed
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	q.wake()
	return nil
}

// len returns the number of queued items.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further pushes. It reports whether this call closed the queue.
func (q *queue) close() bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.closed = true
	q.mu.Unlock()

	q.wake()
	return true
}

// drain removes and returns up to n items from the head without blocking.
func (q *queue) drain(n int) []Publication {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}

	batch := make([]Publication, n)
	copy(batch, q.items[:n])

	// Zero the vacated slots so payloads can be collected.
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

// recv blocks until an item is available and removes it. It returns false once the
// queue is closed and empty.
func (q *queue) recv() (Publication, bool) {
	for {
		if batch := q.drain(1); len(batch) == 1 {
			return batch[0], true
		}

		q.mu.Lock()
		done := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if done {
			return Publication{}, false
		}

		<-q.ready
	}
}

func (q *queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
