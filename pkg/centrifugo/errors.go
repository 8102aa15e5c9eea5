package centrifugo

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
)

// TransportError is returned when the batch call did not complete.
type TransportError struct {
	Code    codes.Code
	Message string
	err     error
}

func newTransportError(err error) *TransportError {
	st, _ := status.FromError(err)
	return &TransportError{
		Code:    st.Code(),
		Message: st.Message(),
		err:     err,
	}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s (code=%s)", e.Message, e.Code)
}

func (e *TransportError) Unwrap() error { return e.err }

// ErrorKind classifies the error for dispatch metrics.
func (e *TransportError) ErrorKind() string { return metrics.ErrKindTransport }

// LogicError is returned when the batch call completed but the broker rejected at
// least one command. ReplyID is the id of the first rejected command.
type LogicError struct {
	ReplyID uint32
	Code    uint32
	Message string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("logic error: %s (code=%d), reply-id:%d", e.Message, e.Code, e.ReplyID)
}

// ErrorKind classifies the error for dispatch metrics.
func (e *LogicError) ErrorKind() string { return metrics.ErrKindLogic }
