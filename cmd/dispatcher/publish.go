package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
	"github.com/ava-labs/pubsub-dispatcher/pkg/utils"
)

var errPublishFailed = errors.New("publication was not accepted by the broker")

func publish(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	factory, err := cfg.ClientFactory(sugar)
	if err != nil {
		return err
	}
	dispatcher, err := pubsub.New(pubsub.Options{Address: cfg.Address}, factory, sugar, nil)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	return publishOne(dispatcher, pubsub.Publication{
		Channel: c.String("channel"),
		Data:    []byte(c.String("data")),
	})
}

// publishOne sends p, drains the dispatcher and reports whether the batch failed.
func publishOne(d *pubsub.Dispatcher, p pubsub.Publication) error {
	if err := d.Send(p); err != nil {
		d.Shutdown()
		return fmt.Errorf("failed to enqueue publication: %w", err)
	}
	d.Shutdown()

	if d.Stats().FailedBatches > 0 {
		return fmt.Errorf("%w: channel %q", errPublishFailed, p.Channel)
	}
	return nil
}
