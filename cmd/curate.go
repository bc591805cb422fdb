package main

import (
	"context"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Curate runs one curation for --license in the foreground, printing progress.
func (r *Runner) Curate(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := store.SubscriberByLicense(ctx, cmd.String("license"))
	if err != nil {
		return err
	}

	curator, closeCurator, err := r.curatorFor(ctx, store)
	if err != nil {
		return err
	}
	defer closeCurator()

	r.logger.Info("starting curation", "subscriber", sub.ID)
	r.writePlain("Curating tracks for subscriber %d...\n\n", sub.ID)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.GenerateQuery, tasks.SearchCatalog:
				r.writePlain("\n🔍 %s\n", update.Message)
			case tasks.Route:
				r.writePlain("🧭 %s\n", update.Message)
			case tasks.Finished:
			default:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	added, err := curator.Curate(ctx, sub, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Curation Complete!")
	r.writePlain("Subscriber: %d\n", sub.ID)
	r.writePlain("Day: %s\n", models.DayKey(r.today()))
	r.writePlain("Tracks added: %d\n", added)
	return nil
}
