package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub/testutils"
)

func testConfig(servers string) ProducerConfig {
	flush := time.Second
	timeout := 500 * time.Millisecond
	return ProducerConfig{
		BootstrapServers: servers,
		ClientID:         "producer-test",
		LingerMs:         1,
		Compression:      "lz4",
		MessageTimeout:   &timeout,
		FlushTimeout:     &flush,
	}
}

// ============================================================================
// NewProducer Tests
// ============================================================================

func TestNewProducer_ValidConfig(t *testing.T) {
	log := testutils.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer, err := NewProducer(ctx, testConfig("localhost:9092"), log)
	require.NoError(t, err)
	require.NotNil(t, producer)

	require.NoError(t, producer.Close())
}

func TestNewProducer_EmptyBootstrapServers(t *testing.T) {
	log := testutils.NewTestLogger(t)

	producer, err := NewProducer(context.Background(), testConfig("  "), log)
	require.ErrorIs(t, err, pubsub.ErrInvalidAddress)
	assert.Nil(t, producer)
}

func TestNewProducer_AppliesDefaultFlushTimeout(t *testing.T) {
	log := testutils.NewTestLogger(t)
	cfg := testConfig("localhost:9092")
	cfg.FlushTimeout = nil

	producer, err := NewProducer(context.Background(), cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	assert.Equal(t, DefaultFlushTimeout, producer.flushTimeout)
}

func TestFactory_UsesAddressAsBootstrapServers(t *testing.T) {
	log := testutils.NewTestLogger(t)
	factory := Factory(testConfig("ignored:9092"), log)

	client, err := factory(context.Background(), "localhost:9092")
	require.NoError(t, err)
	producer, ok := client.(*Producer)
	require.True(t, ok)
	require.NoError(t, producer.Close())

	_, err = factory(context.Background(), "")
	require.ErrorIs(t, err, pubsub.ErrInvalidAddress)
}

// ============================================================================
// Publish Tests
// ============================================================================

func TestProducer_Publish_EmptyBatch(t *testing.T) {
	log := testutils.NewTestLogger(t)
	producer, err := NewProducer(context.Background(), testConfig("localhost:9092"), log)
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.Publish(context.Background(), nil))
}

func TestProducer_Publish_UnreachableBroker(t *testing.T) {
	log := testutils.NewTestLogger(t)
	producer, err := NewProducer(context.Background(), testConfig("127.0.0.1:1"), log)
	require.NoError(t, err)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = producer.Publish(ctx, testutils.NewPublications("news", 3))
	require.Error(t, err)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "news", de.Channel)
	assert.Equal(t, 0, de.Index)
	assert.Equal(t, metrics.ErrKindDelivery, de.ErrorKind())
}

func TestProducer_Publish_CanceledContext(t *testing.T) {
	log := testutils.NewTestLogger(t)
	producer, err := NewProducer(context.Background(), testConfig("127.0.0.1:1"), log)
	require.NoError(t, err)
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = producer.Publish(ctx, testutils.NewPublications("news", 2))
	require.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Producer Close Tests
// ============================================================================

func TestProducer_Close_Idempotent(t *testing.T) {
	log := testutils.NewTestLogger(t)
	producer, err := NewProducer(context.Background(), testConfig("localhost:9092"), log)
	require.NoError(t, err)

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
}

func TestProducer_Close_WaitsForGoroutines(t *testing.T) {
	log := testutils.NewTestLogger(t)
	cfg := testConfig("localhost:9092")
	cfg.EnableLogs = true

	producer, err := NewProducer(context.Background(), cfg, log)
	require.NoError(t, err)

	// Give goroutines time to start
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, producer.Close())
	assert.Less(t, time.Since(start), 10*time.Second)

	select {
	case <-producer.eventsDone:
	default:
		t.Fatal("events goroutine still running after Close")
	}
	select {
	case <-producer.logsDone:
	default:
		t.Fatal("logs goroutine still running after Close")
	}
}

func TestProducer_Errors_ChannelClosed(t *testing.T) {
	log := testutils.NewTestLogger(t)
	producer, err := NewProducer(context.Background(), testConfig("localhost:9092"), log)
	require.NoError(t, err)

	errCh := producer.Errors()
	require.NotNil(t, errCh)
	assert.Greater(t, cap(errCh), 0)

	require.NoError(t, producer.Close())

	// Drain a possible fatal error reported before Close.
	for range errCh {
	}
}

func TestProducer_ContextCancellation_StopsGoroutines(t *testing.T) {
	log := testutils.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())

	producer, err := NewProducer(ctx, testConfig("localhost:9092"), log)
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-producer.eventsDone:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, producer.Close())
}

func TestProducer_ReportFatal_LogsAndDelivers(t *testing.T) {
	log, logs := testutils.NewObservedLogger()
	producer := &Producer{log: log, errCh: make(chan error, 1)}

	first := errors.New("all brokers down")
	producer.reportFatal(first)
	producer.reportFatal(errors.New("second"))

	select {
	case err := <-producer.Errors():
		require.ErrorIs(t, err, first)
	default:
		t.Fatal("fatal error was not delivered")
	}

	failed := logs.FilterMessage("kafka producer failed").All()
	require.Len(t, failed, 2)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, first.Error(), failed[0].ContextMap()["error"])
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "a full channel is reported")
}

// ============================================================================
// Delivery report Tests
// ============================================================================

func TestHandleDeliveryEvent(t *testing.T) {
	log := testutils.NewTestLogger(t)
	topic := "news"

	ok := &cKafka.Message{
		TopicPartition: cKafka.TopicPartition{Topic: &topic, Partition: 2, Offset: 7},
		Opaque:         3,
	}
	i, err := handleDeliveryEvent(log, ok)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	failed := &cKafka.Message{
		TopicPartition: cKafka.TopicPartition{
			Topic: &topic,
			Error: cKafka.NewError(cKafka.ErrMsgTimedOut, "timed out", false),
		},
		Opaque: 1,
	}
	i, err = handleDeliveryEvent(log, failed)
	require.Error(t, err)
	assert.Equal(t, 1, i)

	_, err = handleDeliveryEvent(log, cKafka.NewError(cKafka.ErrAllBrokersDown, "down", false))
	require.Error(t, err)

	_, err = handleDeliveryEvent(log, &cKafka.Message{TopicPartition: cKafka.TopicPartition{Topic: &topic}})
	require.Error(t, err)
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("boom")
	err := &DeliveryError{Channel: "news", Index: 4, err: cause}

	assert.Equal(t, `delivery error: channel "news" index 4: boom`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, metrics.ErrKindDelivery, err.ErrorKind())
}

func TestQueueFullErrorRetryDelay(t *testing.T) {
	assert.Greater(t, queueFullErrorRetryDelay, time.Duration(0))
	assert.LessOrEqual(t, queueFullErrorRetryDelay, 1*time.Second)
}
