package pubsub

import "context"

// Client publishes batches of publications to a broker.
//
// Publish is only ever called from the dispatcher's worker goroutine, so
// implementations do not need to be safe for concurrent use. A non-nil error fails
// the whole batch; there is no partial success accounting.
//
// If a Client also implements io.Closer, the Dispatcher closes it once the worker
// has exited during Shutdown.
type Client interface {
	Publish(ctx context.Context, batch []Publication) error
}

// ClientFactory constructs a Client connected to address.
type ClientFactory func(ctx context.Context, address string) (Client, error)
