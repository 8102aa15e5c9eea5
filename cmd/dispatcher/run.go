package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/pubsub-dispatcher/pkg/metrics"
	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
	"github.com/ava-labs/pubsub-dispatcher/pkg/utils"
)

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	if err := utils.InitGlobalLogger(cfg.Verbose); err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	sugar := zap.S()
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"broker", cfg.Broker,
		"address", cfg.Address,
		"centrifugoAPIKeySet", cfg.Centrifugo.APIKey != "",
		"kafkaClientID", cfg.Kafka.ClientID,
		"kafkaLingerMs", cfg.Kafka.LingerMs,
		"kafkaCompression", cfg.Kafka.Compression,
		"enableKafkaLogs", cfg.Kafka.EnableLogs,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Broker:        cfg.Broker,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	factory, err := cfg.ClientFactory(sugar)
	if err != nil {
		return err
	}
	// Keep the constructed client so its background failures can stop the process.
	var client pubsub.Client
	capture := func(ctx context.Context, address string) (pubsub.Client, error) {
		c, err := factory(ctx, address)
		client = c
		return c, err
	}
	dispatcher, err := pubsub.New(pubsub.Options{Address: cfg.Address}, capture, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer dispatcher.Shutdown()

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, dispatcher.Healthy)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The stdin read cannot be interrupted, so the reader runs outside the group
	// and is abandoned on signal. Sends after Shutdown fail with ErrDispatcherClosed.
	readerDone := make(chan error, 1)
	go func() {
		n, err := readPublications(c.App.Reader, dispatcher.Send, sugar)
		sugar.Infow("stdin reader stopped", "publications", n)
		readerDone <- err
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Reader goroutine - returns on EOF, read error or shutdown
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-readerDone:
			if err != nil && !pubsub.IsClosed(err) {
				return fmt.Errorf("stdin reader error: %w", err)
			}
			// EOF: stop the metrics goroutine as well.
			stop()
			return nil
		}
	})

	// Broker client fatal error goroutine - the Kafka producer stops on fatal errors
	g.Go(func() error {
		return waitFatal(gctx, fatalErrors(client))
	})

	// Metrics server error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	// Wait for first error or completion from any goroutine
	err = g.Wait()

	sugar.Info("draining dispatcher")
	dispatcher.Shutdown()

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	stats := dispatcher.Stats()
	sugar.Infow("shutdown complete",
		"enqueued", stats.Enqueued,
		"dispatched", stats.Dispatched,
		"failedBatches", stats.FailedBatches,
	)
	return err
}
