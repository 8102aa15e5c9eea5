package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// Producer is a Kafka-backed pubsub.Client.
//
// Publish blocks until a delivery report is received for every message of the batch.
// Background goroutines are used to process Kafka producer events and logs.
//
// Close MUST be called at least once to stop background goroutines and flush
// all in-flight messages.
type Producer struct {
	producer     *kafka.Producer
	log          *zap.SugaredLogger
	flushTimeout time.Duration
	errCh        chan error
	eventsDone   chan struct{}
	logsDone     chan struct{}
	closedCh     chan struct{}
	once         sync.Once
}

const queueFullErrorRetryDelay = time.Second

// NewProducer creates a Kafka-backed pubsub.Client.
//
// The provided context controls the lifetime of background goroutines.
// Canceling the context signals the producer to stop processing events.
//
// Callers must call Close to flush messages and release resources.
func NewProducer(ctx context.Context, cfg ProducerConfig, log *zap.SugaredLogger) (*Producer, error) {
	if strings.TrimSpace(cfg.BootstrapServers) == "" {
		return nil, fmt.Errorf("%w: empty bootstrap servers", pubsub.ErrInvalidAddress)
	}
	cfg = cfg.WithDefaults()

	p, err := kafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kq := Producer{
		producer:     p,
		log:          log,
		flushTimeout: *cfg.FlushTimeout,
		eventsDone:   make(chan struct{}),
		logsDone:     make(chan struct{}),
		errCh:        make(chan error, 1),
		closedCh:     make(chan struct{}),
	}

	if cfg.EnableLogs {
		go kq.printKafkaLogs(ctx)
	} else {
		close(kq.logsDone)
	}

	go kq.monitorProducerEvents(ctx)

	log.Infow("kafka producer created", "bootstrapServers", cfg.BootstrapServers)
	return &kq, nil
}

// Factory returns a pubsub.ClientFactory that builds Producers from cfg. The
// address supplied by the dispatcher options is used as the bootstrap servers list.
func Factory(cfg ProducerConfig, log *zap.SugaredLogger) pubsub.ClientFactory {
	return func(ctx context.Context, address string) (pubsub.Client, error) {
		cfg.BootstrapServers = address
		return NewProducer(ctx, cfg, log)
	}
}

// Publish produces every publication of batch to the topic named by its channel,
// in batch order, and waits for all delivery reports.
//
// If the producer queue is full, a message is retried internally with a 1 second
// delay. The batch fails with *DeliveryError naming the first publication that could
// not be produced or whose delivery report carried an error.
//
// If the context is canceled before every report arrived, Publish returns ctx.Err().
// Messages already handed to the producer MAY still be delivered.
func (q *Producer) Publish(ctx context.Context, batch []pubsub.Publication) error {
	if len(batch) == 0 {
		return nil
	}

	// Sized so that librdkafka never blocks on reports nobody waits for anymore.
	// The channel is left open: late reports after a cancellation land in the buffer.
	deliveryCh := make(chan kafka.Event, len(batch))

	produced := 0
	var produceErr *DeliveryError
	for i, pub := range batch {
		topic := pub.Channel
		kMsg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     &topic,
				Partition: kafka.PartitionAny,
			},
			Value:  pub.Data,
			Opaque: i,
		}
		if err := q.produceWithRetry(ctx, kMsg, deliveryCh); err != nil {
			produceErr = &DeliveryError{Channel: pub.Channel, Index: i, err: err}
			break
		}
		produced++
	}

	var firstErr *DeliveryError
	for pending := produced; pending > 0; pending-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-deliveryCh:
			i, err := handleDeliveryEvent(q.log, e)
			if err != nil && (firstErr == nil || i < firstErr.Index) {
				firstErr = &DeliveryError{Channel: batch[i].Channel, Index: i, err: err}
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if produceErr != nil {
		return produceErr
	}
	return nil
}

// Close stops background goroutines and flushes all pending messages.
//
// Close blocks until all queued messages are delivered to Kafka or the configured
// flush timeout is reached, in which case pending messages are lost.
//
// Calling Close multiple times does nothing.
func (q *Producer) Close() error {
	q.once.Do(func() {
		q.log.Info("closing kafka producer")
		defer close(q.errCh)

		// Signal the monitor or logs goroutines to stop.
		close(q.closedCh)

		// Wait for the monitor or logs goroutines to stop.
		<-q.eventsDone
		<-q.logsDone

		pending := q.producer.Flush(int(q.flushTimeout.Milliseconds()))
		if pending > 0 {
			q.log.Warnf("flush incomplete, messages will be lost. pending: %d", pending)
		}

		q.producer.Close()
		q.log.Info("kafka producer closed")
	})
	return nil
}

// Errors returns a channel that receives at most one fatal error.
// The channel is closed when the producer shuts down.
// Non-fatal Kafka errors are logged and ignored.
//
// After receiving an error, the producer is no longer usable.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) printKafkaLogs(ctx context.Context) {
	defer close(q.logsDone)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("stopping kafka logs printing")
			return
		case <-q.closedCh:
			q.log.Info("stopping kafka logs printing, done channel closed")
			return
		case log, ok := <-q.producer.Logs():
			if !ok {
				q.log.Info("kafka logs printing, event channel closed")
				return
			}
			q.log.Debugf("level: %d tag: %s message: %s ", log.Level, log.Tag, log.Message)
		}
	}
}

// produceWithRetry hands a message to the producer queue.
//
// If the producer queue is full, produceWithRetry sleeps for 1 second and retries.
// Any other failure is returned wrapped with its cause.
func (q *Producer) produceWithRetry(
	ctx context.Context,
	msg *kafka.Message,
	deliveryCh chan kafka.Event,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := q.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		kafkaErr, ok := err.(kafka.Error)
		if !ok {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			q.log.Warnf("producer queue full, retrying in %s", queueFullErrorRetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullErrorRetryDelay):
			}
			continue
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrMsgSizeTooLarge, kafka.ErrInvalidMsgSize:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrInvalidMsg:
			return fmt.Errorf("invalid message: %w", err)
		case kafka.ErrUnknownTopicOrPart:
			return fmt.Errorf("unknown topic or partition: %w", err)
		case kafka.ErrAuthentication:
			return fmt.Errorf("authentication error: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (q *Producer) monitorProducerEvents(ctx context.Context) {
	defer close(q.eventsDone)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("stopping kafka producer events monitoring, context done")
			return
		case <-q.closedCh:
			q.log.Info("stopping kafka producer events monitoring, done channel closed")
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.reportFatal(fmt.Errorf("kafka producer events monitoring, event channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				q.log.Error("delivery receipts should be handled during publishing")
			case kafka.Stats:
				q.log.Infof("kafka stats event received %s", e.String())
			case kafka.Error:
				if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
					q.reportFatal(fmt.Errorf("fatal err or ErrAllBrokersDown: %#x, %w", e.Code(), e))
					return
				}
				q.log.Warnf("ignoring unexpected kafka error: %#x, %v", e.Code(), e)
			default:
				q.log.Warnf("Unknown event: %+v", e)
			}
		}
	}
}

func (q *Producer) reportFatal(err error) {
	q.log.Errorw("kafka producer failed", "error", err)
	select {
	case q.errCh <- err:
	default:
		q.log.Warnf("error channel is full, should not happen: %v", err)
	}
}

// handleDeliveryEvent returns the batch position of the reported message and its
// delivery error, if any. Reports that cannot be attributed count against position 0.
func handleDeliveryEvent(log *zap.SugaredLogger, ev kafka.Event) (int, error) {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return 0, fmt.Errorf("unexpected delivery event: %T", ev)
	}

	i, ok := e.Opaque.(int)
	if !ok {
		return 0, fmt.Errorf("delivery report without batch position")
	}
	if err := e.TopicPartition.Error; err != nil {
		return i, fmt.Errorf("delivery failed: %w", err)
	}

	log.Debugf(
		"delivered to topic [%s] partition [%d] at offset [%d]",
		*e.TopicPartition.Topic,
		e.TopicPartition.Partition,
		e.TopicPartition.Offset,
	)
	return i, nil
}
