package host

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/centrifugo"
	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
	"github.com/ava-labs/pubsub-dispatcher/pkg/utils"
)

// ErrHandleDestroyed is returned when publishing through a closed or absent handle.
var ErrHandleDestroyed = errors.New("dispatcher handle destroyed")

// Options configures a dispatcher started by the host.
type Options struct {
	Address string // broker endpoint URI
	APIKey  string // optional Centrifugo gRPC API key
}

// Handle owns a running Dispatcher.
type Handle struct {
	d atomic.Pointer[pubsub.Dispatcher]
}

// Start constructs a Centrifugo-backed dispatcher for opts. m may be nil.
func Start(opts Options, log *zap.SugaredLogger, m *metrics.Metrics) (*Handle, error) {
	factory := centrifugo.Factory(centrifugo.Config{APIKey: opts.APIKey}, log)
	return StartWithFactory(opts, factory, log, m)
}

// StartFromEnv constructs a Centrifugo-backed dispatcher configured from the
// CENTRIFUGO_ADDRESS and CENTRIFUGO_API_KEY environment variables.
func StartFromEnv(log *zap.SugaredLogger, m *metrics.Metrics) (*Handle, error) {
	cfg, err := centrifugo.LoadConfig()
	if err != nil {
		return nil, err
	}
	return Start(Options{Address: cfg.Address, APIKey: cfg.APIKey}, log, m)
}

// StartWithFactory constructs a dispatcher whose client is built by factory.
func StartWithFactory(opts Options, factory pubsub.ClientFactory, log *zap.SugaredLogger, m *metrics.Metrics) (*Handle, error) {
	d, err := pubsub.New(pubsub.Options{Address: opts.Address}, factory, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to start dispatcher: %w", err)
	}
	h := &Handle{}
	h.d.Store(d)
	return h, nil
}

// Publish enqueues data for channel. The payload is copied, so the caller may
// reuse its buffer once Publish returns.
func (h *Handle) Publish(channel string, data []byte) error {
	if h == nil {
		return ErrHandleDestroyed
	}
	d := h.d.Load()
	if d == nil {
		return ErrHandleDestroyed
	}
	return d.Send(pubsub.Publication{
		Channel: channel,
		Data:    append([]byte(nil), data...),
	})
}

// Close drains and stops the dispatcher. Calling Close on a nil or already closed
// handle does nothing.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	if d := h.d.Swap(nil); d != nil {
		d.Shutdown()
	}
}

// Stats returns the dispatcher counters, or false if the handle is destroyed.
func (h *Handle) Stats() (pubsub.Stats, bool) {
	if h == nil {
		return pubsub.Stats{}, false
	}
	d := h.d.Load()
	if d == nil {
		return pubsub.Stats{}, false
	}
	return d.Stats(), true
}

// InitLogging initializes process-wide logging once; repeated calls are no-ops.
func InitLogging(verbose bool) error {
	return utils.InitGlobalLogger(verbose)
}
