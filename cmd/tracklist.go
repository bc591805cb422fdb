package main

import (
	"context"

	"github.com/desertthunder/acura/internal/formatter"
	"github.com/desertthunder/acura/internal/models"
	"github.com/urfave/cli/v3"
)

// Tracklist prints today's unplayed suggestions for --license.
func (r *Runner) Tracklist(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := store.SubscriberByLicense(ctx, cmd.String("license"))
	if err != nil {
		return err
	}

	day := r.today()
	entries, err := store.Tracklist(ctx, sub.ID, day)
	if err != nil {
		return err
	}

	list := formatter.Tracklist{License: sub.License, Day: models.DayKey(day), Entries: entries}
	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(list, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("tracklist exported", "path", written, "tracks", len(entries))
		return r.writePlain("✓ Exported %d tracks to %s\n", len(entries), written)
	}
	return formatter.Write(r.output, list, format)
}
