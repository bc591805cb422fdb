package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/acura/internal/queue"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/urfave/cli/v3"
)

// Enqueue publishes a curation request for --license.
func (r *Runner) Enqueue(ctx context.Context, cmd *cli.Command) error {
	license := cmd.String("license")

	publisher, closePublisher, err := r.openPublisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	msgID := shared.GenerateID()
	if err := publisher.Publish(ctx, license, msgID); err != nil {
		return err
	}

	r.logger.Info("curation request enqueued", "msg_id", msgID)
	return r.writePlain("✓ Curation request queued (%s)\n", msgID)
}

// Consume runs the queue worker until SIGINT or SIGTERM.
func (r *Runner) Consume(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n := cmd.Int("concurrency"); n > 0 {
		r.config.Queue.Concurrency = int(n)
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	curator, closeCurator, err := r.curatorFor(ctx, store)
	if err != nil {
		return err
	}
	defer closeCurator()

	stream, err := r.openStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	deliveries, err := stream.Deliveries(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("consuming curation requests",
		"subject", r.config.Queue.Subject, "concurrency", r.config.Queue.Concurrency)

	consumer := queue.NewConsumer(curator, store, queue.SettingsFromConfig(r.config.Queue), r.logger.WithPrefix("consumer"))
	return consumer.Run(ctx, deliveries)
}
