package pubsub

import "errors"

var (
	// ErrDispatcherClosed is returned by Send after Shutdown has been called.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrInvalidAddress is returned when a broker address cannot be used to build a client.
	ErrInvalidAddress = errors.New("invalid broker address")

	// ErrClientConstruction wraps failures of the ClientFactory passed to New.
	ErrClientConstruction = errors.New("failed to construct broker client")
)
