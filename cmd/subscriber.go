package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/acura/internal/shared"
	"github.com/urfave/cli/v3"
)

type subscriberView struct {
	ID        int64        `json:"id"`
	License   string       `json:"license"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Prompts   []promptView `json:"prompts"`
}

type promptView struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	ActiveWhen string `json:"active_when,omitempty"`
}

// SubscriberAdd creates a subscriber and its first prompt.
func (r *Runner) SubscriberAdd(ctx context.Context, cmd *cli.Command) error {
	license := strings.TrimSpace(cmd.String("license"))
	if license == "" {
		license = shared.GenerateID()
	}
	prompt := strings.TrimSpace(cmd.String("prompt"))
	if prompt == "" {
		return fmt.Errorf("%w: --prompt", shared.ErrMissingArgument)
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := store.CreateSubscriber(ctx, license, cmd.String("note"))
	if err != nil {
		return err
	}
	if _, err := store.AddPrompt(ctx, sub.ID, prompt, ""); err != nil {
		return err
	}

	r.logger.Info("subscriber created", "id", sub.ID)
	return r.writePlain("✓ Subscriber %d created\nLicense: %s\n", sub.ID, sub.License)
}

// SubscriberPrompt adds a prompt to an existing subscriber.
func (r *Runner) SubscriberPrompt(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := store.SubscriberByLicense(ctx, cmd.String("license"))
	if err != nil {
		return err
	}
	p, err := store.AddPrompt(ctx, sub.ID, cmd.String("text"), cmd.String("active-when"))
	if err != nil {
		return err
	}
	return r.writePlain("✓ Prompt %d added\n", p.ID)
}

// SubscriberShow prints a subscriber with its prompts.
func (r *Runner) SubscriberShow(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := store.SubscriberByLicense(ctx, cmd.String("license"))
	if err != nil {
		return err
	}
	prompts, err := store.PromptsBySubscriber(ctx, sub.ID)
	if err != nil {
		return err
	}

	view := subscriberView{ID: sub.ID, License: sub.License, Note: sub.Note, CreatedAt: sub.CreatedAt, Prompts: []promptView{}}
	for _, p := range prompts {
		view.Prompts = append(view.Prompts, promptView{ID: p.ID, Text: p.Text, ActiveWhen: p.ActiveWhen})
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}

	r.writePlainHeader(fmt.Sprintf("Subscriber %d", view.ID))
	r.writePlain("License: %s\n", view.License)
	if view.Note != "" {
		r.writePlain("Note:    %s\n", view.Note)
	}
	r.writePlain("Created: %s\n\n", view.CreatedAt.Format(time.RFC3339))
	r.writePlain("Prompts (%d):\n", len(view.Prompts))
	for _, p := range view.Prompts {
		if p.ActiveWhen != "" {
			r.writePlain("  %d. %s (%s)\n", p.ID, p.Text, p.ActiveWhen)
		} else {
			r.writePlain("  %d. %s\n", p.ID, p.Text)
		}
	}
	return nil
}
