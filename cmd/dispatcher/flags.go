package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// brokerFlags returns the flags shared by every command that talks to a broker
func brokerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "broker",
			Usage:   "Broker type (centrifugo, kafka)",
			EnvVars: []string{"PUBSUB_BROKER"},
			Value:   brokerCentrifugo,
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "Broker address: http(s)://host:port for centrifugo, comma-separated bootstrap servers for kafka",
			EnvVars: []string{"PUBSUB_ADDRESS"},
			Value:   "http://localhost:10000",
		},
		// Centrifugo configuration flags
		&cli.StringFlag{
			Name:    "centrifugo-api-key",
			Usage:   "Centrifugo gRPC API key (sent as 'authorization: apikey <key>')",
			EnvVars: []string{"CENTRIFUGO_API_KEY"},
		},
		// Kafka configuration flags
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "Kafka client ID",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "pubsub-dispatcher",
		},
		&cli.IntFlag{
			Name:    "kafka-linger-ms",
			Usage:   "Kafka producer linger in milliseconds",
			EnvVars: []string{"KAFKA_LINGER_MS"},
			Value:   5,
		},
		&cli.StringFlag{
			Name:    "kafka-compression",
			Usage:   "Kafka compression type (none, gzip, snappy, lz4, zstd)",
			EnvVars: []string{"KAFKA_COMPRESSION"},
			Value:   "lz4",
		},
		&cli.DurationFlag{
			Name:    "kafka-message-timeout",
			Usage:   "Upper bound for a Kafka delivery report (0 keeps the librdkafka default)",
			EnvVars: []string{"KAFKA_MESSAGE_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "kafka-flush-timeout",
			Usage:   "Kafka producer flush timeout on shutdown",
			EnvVars: []string{"KAFKA_FLUSH_TIMEOUT"},
			Value:   15 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "enable-kafka-logs",
			Usage:   "Enable librdkafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
			Value:   false,
		},
	}
}

// runFlags returns all CLI flags for the run command
func runFlags() []cli.Flag {
	return append(brokerFlags(),
		// Metrics configuration flags
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	)
}

// publishFlags returns all CLI flags for the publish command
func publishFlags() []cli.Flag {
	return append(brokerFlags(),
		&cli.StringFlag{
			Name:     "channel",
			Aliases:  []string{"c"},
			Usage:    "Channel to publish to",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Payload to publish, sent verbatim",
			Required: true,
		},
	)
}
