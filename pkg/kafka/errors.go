package kafka

import (
	"fmt"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
)

// DeliveryError is returned when a message of the batch could not be handed to
// Kafka or its delivery report carried an error. Index is the 0-based position
// of the first failed publication in the batch.
type DeliveryError struct {
	Channel string
	Index   int
	err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error: channel %q index %d: %v", e.Channel, e.Index, e.err)
}

func (e *DeliveryError) Unwrap() error { return e.err }

// ErrorKind classifies the error for dispatch metrics.
func (e *DeliveryError) ErrorKind() string { return metrics.ErrKindDelivery }
