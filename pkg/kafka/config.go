package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default values for the Kafka producer
const (
	DefaultFlushTimeout = 15 * time.Second
	messageMaxBytes     = 20971521 // 20MB
)

// ProducerConfig holds the configuration for the Kafka broker client.
type ProducerConfig struct {
	BootstrapServers string         `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"` // Kafka broker addresses
	ClientID         string         `env:"KAFKA_CLIENT_ID"         envDefault:"pubsub-dispatcher"`
	LingerMs         int            `env:"KAFKA_LINGER_MS"         envDefault:"5"`     // Producer-side batching delay
	Compression      string         `env:"KAFKA_COMPRESSION"       envDefault:"lz4"`   // compression.type
	MessageTimeout   *time.Duration `env:"KAFKA_MESSAGE_TIMEOUT"`                      // Upper bound for a delivery report; librdkafka default when nil
	FlushTimeout     *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"     envDefault:"15s"`   // Flush timeout on Close
	EnableLogs       bool           `env:"KAFKA_ENABLE_LOGS"       envDefault:"false"` // Enable librdkafka client logs
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse kafka producer config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ProducerConfig) WithDefaults() ProducerConfig {
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	return c
}

// ConfigMap builds the librdkafka configuration.
func (c ProducerConfig) ConfigMap() *confluentKafka.ConfigMap {
	cfg := &confluentKafka.ConfigMap{
		// Required
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID,

		// Reliability: wait for all replicas to acknowledge
		"acks": "all",

		// Performance tuning
		"linger.ms":        c.LingerMs,
		"compression.type": c.Compression,

		// Idempotence keeps per-partition order across internal retries
		"enable.idempotence": true,

		// Go channel for logs (optional, enable for debugging)
		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	if c.MessageTimeout != nil {
		(*cfg)["message.timeout.ms"] = int(c.MessageTimeout.Milliseconds())
	}
	return cfg
}
