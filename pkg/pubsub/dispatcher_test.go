package pubsub_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/pubsub-dispatcher/pkg/centrifugo"
	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub/testutils"
)

func newDispatcher(t *testing.T, c pubsub.Client) *pubsub.Dispatcher {
	t.Helper()
	d := pubsub.NewWithClient(c, testutils.NewTestLogger(t), nil)
	t.Cleanup(d.Shutdown)
	return d
}

func waitQueueEmpty(t *testing.T, d *pubsub.Dispatcher) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Stats().QueueDepth == 0 }, 5*time.Second, time.Millisecond)
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_PassesAddressToFactory(t *testing.T) {
	fake := testutils.NewFakeClient()
	var gotAddress string
	factory := func(_ context.Context, address string) (pubsub.Client, error) {
		gotAddress = address
		return fake, nil
	}

	d, err := pubsub.New(pubsub.Options{Address: "http://centrifugo:10000"}, factory, testutils.NewTestLogger(t), nil)
	require.NoError(t, err)
	d.Shutdown()

	assert.Equal(t, "http://centrifugo:10000", gotAddress)
	assert.Equal(t, 1, fake.CloseCount())
}

func TestNew_FactoryErrorIsConstructionError(t *testing.T) {
	factory := func(_ context.Context, address string) (pubsub.Client, error) {
		return nil, fmt.Errorf("%w: %q", pubsub.ErrInvalidAddress, address)
	}

	d, err := pubsub.New(pubsub.Options{Address: "::bad::"}, factory, testutils.NewTestLogger(t), nil)
	require.Nil(t, d)
	require.ErrorIs(t, err, pubsub.ErrClientConstruction)
	require.ErrorIs(t, err, pubsub.ErrInvalidAddress)
}

func TestNew_NilFactory(t *testing.T) {
	d, err := pubsub.New(pubsub.Options{}, nil, testutils.NewTestLogger(t), nil)
	require.Nil(t, d)
	require.ErrorIs(t, err, pubsub.ErrClientConstruction)
}

func TestNew_WithCentrifugoFactoryConnectsLazily(t *testing.T) {
	log := testutils.NewTestLogger(t)
	d, err := pubsub.New(pubsub.Options{Address: "http://127.0.0.1:1"}, centrifugo.Factory(centrifugo.Config{}, log), log, nil)
	require.NoError(t, err)
	d.Shutdown()
}

// ============================================================================
// Ordering and batching
// ============================================================================

func TestDispatcher_ScenarioA_OrderAcrossBatches(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	require.NoError(t, d.Send(pubsub.Publication{Channel: "c1", Data: []byte{1, 2, 3}}))
	require.NoError(t, d.Send(pubsub.Publication{Channel: "c2", Data: []byte{4}}))
	d.Shutdown()

	batches := fake.Batches()
	require.True(t, len(batches) == 1 || len(batches) == 2, "got %d batches", len(batches))
	assert.Equal(t, []pubsub.Publication{
		{Channel: "c1", Data: []byte{1, 2, 3}},
		{Channel: "c2", Data: []byte{4}},
	}, fake.Published())
}

func TestDispatcher_FIFOPreservation(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	pubs := testutils.NewPublications("orders", 1000)
	for _, p := range pubs {
		require.NoError(t, d.Send(p))
	}
	d.Shutdown()

	assert.Equal(t, pubs, fake.Published())
}

func TestDispatcher_BatchBoundedBySnapshot(t *testing.T) {
	fake := testutils.NewFakeClient()
	fake.Gate = make(chan struct{})
	d := newDispatcher(t, fake)

	// The worker takes the first publication alone and parks in Publish.
	require.NoError(t, d.Send(pubsub.Publication{Channel: "first"}))
	waitQueueEmpty(t, d)

	for _, p := range testutils.NewPublications("rest", 5) {
		require.NoError(t, d.Send(p))
	}
	fake.Gate <- struct{}{}
	fake.Gate <- struct{}{}
	d.Shutdown()

	batches := fake.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 5)
}

func TestDispatcher_IdleLoadDispatchesPerItem(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(pubsub.Publication{Channel: fmt.Sprint(i)}))
		select {
		case size := <-fake.Calls():
			assert.Equal(t, 1, size)
		case <-time.After(5 * time.Second):
			t.Fatal("publication was not dispatched")
		}
	}
}

func TestDispatcher_ConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 250
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, d.Send(pubsub.Publication{Channel: fmt.Sprint(p), Data: []byte(fmt.Sprint(i))}))
			}
		}(p)
	}
	wg.Wait()
	d.Shutdown()

	published := fake.Published()
	require.Len(t, published, producers*perProducer)

	next := make(map[string]int)
	for _, p := range published {
		require.Equal(t, fmt.Sprint(next[p.Channel]), string(p.Data), "producer %s out of order", p.Channel)
		next[p.Channel]++
	}
}

// ============================================================================
// Shutdown
// ============================================================================

func TestDispatcher_NoLossOnGracefulShutdown(t *testing.T) {
	fake := testutils.NewFakeClient()
	fake.Gate = make(chan struct{})
	d := newDispatcher(t, fake)

	pubs := testutils.NewPublications("ch", 100)
	for _, p := range pubs {
		require.NoError(t, d.Send(p))
	}

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a publish call was blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(fake.Gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	assert.Equal(t, pubs, fake.Published(), "every publication delivered exactly once")
}

func TestDispatcher_ShutdownIsIdempotent(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	require.NoError(t, d.Send(pubsub.Publication{Channel: "once"}))
	d.Shutdown()
	d.Shutdown()

	assert.Len(t, fake.Published(), 1, "no repeated flush")
	assert.Equal(t, 1, fake.CloseCount(), "client closed once")
	assert.True(t, d.Closed())
	assert.ErrorIs(t, d.Healthy(), pubsub.ErrDispatcherClosed)
}

func TestDispatcher_SendAfterShutdownFails(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)
	d.Shutdown()

	err := d.Send(pubsub.Publication{Channel: "late"})
	require.ErrorIs(t, err, pubsub.ErrDispatcherClosed)
	assert.True(t, pubsub.IsClosed(err))
	assert.Empty(t, fake.Published())
	assert.Equal(t, uint64(1), d.Stats().Rejected)
}

func TestDispatcher_ShutdownWithoutWork(t *testing.T) {
	fake := testutils.NewFakeClient()
	d := newDispatcher(t, fake)

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown of an idle dispatcher did not complete")
	}
	assert.Empty(t, fake.Batches())
}

// ============================================================================
// Failure handling
// ============================================================================

func TestDispatcher_ScenarioB_TransportFailureDoesNotStopWorker(t *testing.T) {
	fake := testutils.NewFakeClient()
	fake.FailNext(&centrifugo.TransportError{Message: "connection refused"})

	log, logs := testutils.NewObservedLogger()
	d := pubsub.NewWithClient(fake, log, nil)

	require.NoError(t, d.Send(pubsub.Publication{Channel: "c1", Data: []byte{1}}))
	select {
	case <-fake.Calls():
	case <-time.After(5 * time.Second):
		t.Fatal("first batch was not attempted")
	}

	require.NoError(t, d.Send(pubsub.Publication{Channel: "c3", Data: []byte{9}}))
	d.Shutdown()

	batches := fake.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []pubsub.Publication{{Channel: "c3", Data: []byte{9}}}, batches[1])

	failures := logs.FilterMessage("publication failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, metrics.ErrKindTransport, failures[0].ContextMap()["kind"])

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.FailedBatches)
	assert.Equal(t, uint64(1), stats.Dispatched)
}

func TestDispatcher_ScenarioC_LogicErrorIsLogged(t *testing.T) {
	fake := testutils.NewFakeClient()
	fake.FailNext(&centrifugo.LogicError{ReplyID: 2, Code: 102, Message: "unknown channel"})

	log, logs := testutils.NewObservedLogger()
	d := pubsub.NewWithClient(fake, log, nil)

	require.NoError(t, d.Send(pubsub.Publication{Channel: "a"}))
	require.NoError(t, d.Send(pubsub.Publication{Channel: "b"}))
	<-fake.Calls()
	require.NoError(t, d.Send(pubsub.Publication{Channel: "c"}))
	d.Shutdown()

	failures := logs.FilterMessage("publication failed").All()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].ContextMap()["error"], "reply-id:2")
	assert.Equal(t, metrics.ErrKindLogic, failures[0].ContextMap()["kind"])

	published := fake.Published()
	require.NotEmpty(t, published)
	assert.Equal(t, "c", published[len(published)-1].Channel, "worker kept going")
}

func TestDispatcher_FailureIsolationAcrossManyBatches(t *testing.T) {
	fake := testutils.NewFakeClient()
	for i := 0; i < 3; i++ {
		fake.FailNext(errors.New("boom"))
	}
	log, logs := testutils.NewObservedLogger()
	d := pubsub.NewWithClient(fake, log, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Send(pubsub.Publication{Channel: fmt.Sprint(i)}))
		<-fake.Calls()
	}
	d.Shutdown()

	assert.Len(t, fake.Batches(), 5)
	assert.Len(t, logs.FilterMessage("publication failed").All(), 3)
	assert.Equal(t, metrics.ErrKindUnknown, logs.FilterMessage("publication failed").All()[0].ContextMap()["kind"])
	assert.Equal(t, uint64(3), d.Stats().FailedBatches)
	assert.Equal(t, uint64(2), d.Stats().Batches)
}

// ============================================================================
// Collaborators
// ============================================================================

func TestDispatcher_WithMockClient(t *testing.T) {
	client := &testutils.MockClient{}
	p := pubsub.Publication{Channel: "mocked", Data: []byte("payload")}
	client.On("Publish", mock.Anything, []pubsub.Publication{p}).Return(nil).Once()

	d := newDispatcher(t, client)
	require.NoError(t, d.Send(p))
	d.Shutdown()

	client.AssertExpectations(t)
}

func TestDispatcher_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	fake := testutils.NewFakeClient()
	d := pubsub.NewWithClient(fake, testutils.NewTestLogger(t), m)
	for _, p := range testutils.NewPublications("ch", 3) {
		require.NoError(t, d.Send(p))
	}
	d.Shutdown()
	require.ErrorIs(t, d.Send(pubsub.Publication{}), pubsub.ErrDispatcherClosed)

	expected := `
# HELP pubsub_publications_enqueued_total Total number of publications accepted by the dispatcher
# TYPE pubsub_publications_enqueued_total counter
pubsub_publications_enqueued_total 3
# HELP pubsub_enqueue_rejected_total Total number of publications rejected because the dispatcher was closed
# TYPE pubsub_enqueue_rejected_total counter
pubsub_enqueue_rejected_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"pubsub_publications_enqueued_total", "pubsub_enqueue_rejected_total"))
}
