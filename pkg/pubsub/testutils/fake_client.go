package testutils

import (
	"context"
	"sync"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// FakeClient is an in-memory pubsub.Client that records every batch it receives.
//
// Errors queued with FailNext are returned by subsequent Publish calls in order.
// When Gate is set, Publish blocks until a value is received from it.
type FakeClient struct {
	mu       sync.Mutex
	batches  [][]pubsub.Publication
	failures []error
	closed   int

	Gate chan struct{}

	// calls receives the batch size of every Publish call, if buffered room allows.
	calls chan int
}

// NewFakeClient creates a FakeClient that reports each Publish call on Calls.
func NewFakeClient() *FakeClient {
	return &FakeClient{calls: make(chan int, 1024)}
}

// Publish records batch. It returns the next queued failure, if any.
func (c *FakeClient) Publish(ctx context.Context, batch []pubsub.Publication) error {
	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	cp := make([]pubsub.Publication, len(batch))
	copy(cp, batch)
	c.batches = append(c.batches, cp)

	var err error
	if len(c.failures) > 0 {
		err = c.failures[0]
		c.failures = c.failures[1:]
	}
	c.mu.Unlock()

	select {
	case c.calls <- len(batch):
	default:
	}
	return err
}

// Close counts how many times the client was closed.
func (c *FakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// FailNext makes the next Publish call return err. Calls stack in order.
func (c *FakeClient) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, err)
}

// Calls reports the size of each batch as Publish is called.
func (c *FakeClient) Calls() <-chan int {
	return c.calls
}

// Batches returns a copy of the recorded batches.
func (c *FakeClient) Batches() [][]pubsub.Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]pubsub.Publication, len(c.batches))
	copy(out, c.batches)
	return out
}

// Published returns every recorded publication in the order received.
func (c *FakeClient) Published() []pubsub.Publication {
	var out []pubsub.Publication
	for _, b := range c.Batches() {
		out = append(out, b...)
	}
	return out
}

// CloseCount returns how many times Close was called.
func (c *FakeClient) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
