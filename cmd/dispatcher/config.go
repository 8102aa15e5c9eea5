package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/centrifugo"
	"github.com/ava-labs/pubsub-dispatcher/pkg/kafka"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

const (
	brokerCentrifugo = "centrifugo"
	brokerKafka      = "kafka"
)

// Config holds all configuration for the dispatcher application
type Config struct {
	// Application settings
	Verbose bool

	// Broker settings
	Broker     string
	Address    string
	Centrifugo centrifugo.Config
	Kafka      kafka.ProducerConfig

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// ClientFactory returns the factory for the configured broker.
func (c *Config) ClientFactory(log *zap.SugaredLogger) (pubsub.ClientFactory, error) {
	switch c.Broker {
	case brokerCentrifugo:
		return centrifugo.Factory(c.Centrifugo, log), nil
	case brokerKafka:
		return kafka.Factory(c.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unsupported broker %q (want %s or %s)", c.Broker, brokerCentrifugo, brokerKafka)
	}
}

// fatalErrorReporter is implemented by broker clients that can fail permanently
// in the background, such as the Kafka producer.
type fatalErrorReporter interface {
	Errors() <-chan error
}

// fatalErrors returns the client's fatal error channel, or nil if it has none.
func fatalErrors(c pubsub.Client) <-chan error {
	if r, ok := c.(fatalErrorReporter); ok {
		return r.Errors()
	}
	return nil
}

// waitFatal blocks until ctx is done or errs delivers a fatal client error.
// A closed or nil channel never fails.
func waitFatal(ctx context.Context, errs <-chan error) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errs:
		if !ok || err == nil {
			return nil
		}
		return fmt.Errorf("broker client failed: %w", err)
	}
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	broker := c.String("broker")
	if broker != brokerCentrifugo && broker != brokerKafka {
		return nil, fmt.Errorf("unsupported broker %q (want %s or %s)", broker, brokerCentrifugo, brokerKafka)
	}

	flushTimeout := c.Duration("kafka-flush-timeout")
	var messageTimeout *time.Duration
	if d := c.Duration("kafka-message-timeout"); d > 0 {
		messageTimeout = &d
	}

	return &Config{
		Verbose: c.Bool("verbose"),
		Broker:  broker,
		Address: c.String("address"),
		Centrifugo: centrifugo.Config{
			Address: c.String("address"),
			APIKey:  c.String("centrifugo-api-key"),
		},
		Kafka: kafka.ProducerConfig{
			BootstrapServers: c.String("address"),
			ClientID:         c.String("kafka-client-id"),
			LingerMs:         c.Int("kafka-linger-ms"),
			Compression:      c.String("kafka-compression"),
			MessageTimeout:   messageTimeout,
			FlushTimeout:     &flushTimeout,
			EnableLogs:       c.Bool("enable-kafka-logs"),
		},
		MetricsHost:   c.String("metrics-host"),
		MetricsPort:   c.Int("metrics-port"),
		Environment:   c.String("environment"),
		Region:        c.String("region"),
		CloudProvider: c.String("cloud-provider"),
	}, nil
}
