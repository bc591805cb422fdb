// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func licenseFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "license",
		Aliases:  []string{"l"},
		Usage:    "Subscriber license",
		Required: required,
	}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the default template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the database schema (SQLite migrations or PostgreSQL with pgvector)",
				Action: r.SetupDatabase,
			},
		},
	}
}

// subscriberCommand manages subscribers and their prompts.
func subscriberCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "subscriber",
		Aliases: []string{"sub"},
		Usage:   "Manage subscribers",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a subscriber with an ambiance prompt",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "license",
						Aliases: []string{"l"},
						Usage:   "License token (generated when empty)",
					},
					&cli.StringFlag{
						Name:     "prompt",
						Aliases:  []string{"p"},
						Usage:    "Ambiance description, e.g. \"calm jazz for a wine bar\"",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "note",
						Usage: "Free-form note",
					},
				},
				Action: r.SubscriberAdd,
			},
			{
				Name:  "prompt",
				Usage: "Add another prompt to a subscriber",
				Flags: []cli.Flag{
					licenseFlag(true),
					&cli.StringFlag{
						Name:     "text",
						Usage:    "Ambiance description",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "active-when",
						Usage: "When the prompt applies, e.g. \"mornings\"",
					},
				},
				Action: r.SubscriberPrompt,
			},
			{
				Name:  "show",
				Usage: "Show a subscriber and its prompts",
				Flags: []cli.Flag{
					licenseFlag(true),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SubscriberShow,
			},
		},
	}
}

// curateCommand runs curation in the foreground.
func curateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "curate",
		Usage:  "Run curation for one subscriber and print progress",
		Flags:  []cli.Flag{licenseFlag(true)},
		Action: r.Curate,
	}
}

// enqueueCommand publishes a curation request.
func enqueueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "enqueue",
		Usage:  "Publish a curation request to the queue",
		Flags:  []cli.Flag{licenseFlag(true)},
		Action: r.Enqueue,
	}
}

// consumeCommand starts the queue worker.
func consumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "consume",
		Aliases: []string{"worker"},
		Usage:   "Consume curation requests until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Override queue.concurrency",
			},
		},
		Action: r.Consume,
	}
}

// serveCommand starts the tracklist API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the tracklist API until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override server.port",
			},
		},
		Action: r.Serve,
	}
}

// tracklistCommand prints today's tracklist.
func tracklistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracklist",
		Usage: "Show today's unplayed suggestions for a subscriber",
		Flags: []cli.Flag{
			licenseFlag(true),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, csv or markdown",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.Tracklist,
	}
}
