package host

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// ErrHandleNotFound is returned for ids the registry does not know. It matches
// ErrHandleDestroyed under errors.Is.
var ErrHandleNotFound = errors.Join(errors.New("dispatcher handle not found"), ErrHandleDestroyed)

// Registry maps integer ids to handles for hosts that cannot hold Go values.
type Registry struct {
	factory pubsub.ClientFactory
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu      sync.Mutex
	nextID  uint64
	handles map[uint64]*Handle
}

// NewRegistry creates a Registry whose dispatchers build clients with factory.
func NewRegistry(factory pubsub.ClientFactory, log *zap.SugaredLogger, m *metrics.Metrics) *Registry {
	return &Registry{
		factory: factory,
		log:     log,
		metrics: m,
		handles: make(map[uint64]*Handle),
	}
}

// Open starts a dispatcher and returns its id. Ids start at 1 and are never reused.
func (r *Registry) Open(opts Options) (uint64, error) {
	h, err := StartWithFactory(opts, r.factory, r.log, r.metrics)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handles[r.nextID] = h
	return r.nextID, nil
}

// Publish enqueues a publication on the dispatcher with the given id.
func (r *Registry) Publish(id uint64, channel string, data []byte) error {
	h := r.lookup(id)
	if h == nil {
		return ErrHandleNotFound
	}
	return h.Publish(channel, data)
}

// Close removes the handle and shuts its dispatcher down. Unknown ids are ignored.
func (r *Registry) Close(id uint64) {
	r.mu.Lock()
	h := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	h.Close()
}

// CloseAll shuts down every registered dispatcher.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[uint64]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) lookup(id uint64) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}
