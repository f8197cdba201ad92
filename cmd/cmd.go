// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("TUNESYNC_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "User id or email to act as",
			Sources: cli.EnvVars("TUNESYNC_USER"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Shorthand for --log-level debug",
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func withOutput(flags ...cli.Flag) []cli.Flag {
	return append(flags, outputFlags()...)
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file if needed, initialize the database and run migrations",
		Action: r.Setup,
	}
}

func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database migrations",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations",
				Action: r.Migrate,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.Rollback,
			},
			{
				Name:   "status",
				Usage:  "List migrations and whether they are applied",
				Flags:  outputFlags(),
				Action: r.MigrationStatus,
			},
		},
	}
}

func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage local users",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a user",
				Flags: withOutput(
					&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
				),
				Action: r.UserCreate,
			},
			{
				Name:   "list",
				Usage:  "List users",
				Flags:  outputFlags(),
				Action: r.UserList,
			},
		},
	}
}

func connectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect a provider account with OAuth",
		ArgsUsage: "<provider>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: 2 * time.Minute,
			},
		},
		Action: r.Connect,
	}
}

func disconnectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "disconnect",
		Usage:     "Remove the stored connection to a provider",
		ArgsUsage: "<provider>",
		Action:    r.Disconnect,
	}
}

func servicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "services",
		Usage:  "List supported providers and your connections",
		Flags:  outputFlags(),
		Action: r.Services,
		Commands: []*cli.Command{
			{
				Name:      "test",
				Usage:     "Check a connection by fetching the account profile",
				ArgsUsage: "<provider>",
				Flags:     outputFlags(),
				Action:    r.TestConnection,
			},
		},
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Mirror, inspect, export and edit playlists",
		Commands: []*cli.Command{
			{
				Name:      "pull",
				Usage:     "Pull every playlist of a provider into the local mirror",
				ArgsUsage: "<provider>",
				Flags:     outputFlags(),
				Action:    r.PlaylistsPull,
			},
			{
				Name:  "list",
				Usage: "List mirrored playlists",
				Flags: withOutput(
					&cli.StringFlag{Name: "service", Aliases: []string{"s"}, Usage: "Only playlists of this provider"},
				),
				Action: r.PlaylistsList,
			},
			{
				Name:      "show",
				Usage:     "Show a mirrored playlist and its tracks",
				ArgsUsage: "<playlist-id>",
				Flags: withOutput(
					&cli.BoolFlag{Name: "refresh", Aliases: []string{"r"}, Usage: "Pull the playlist from its provider first"},
				),
				Action: r.PlaylistsShow,
			},
			{
				Name:      "export",
				Usage:     "Export mirrored playlists to files",
				ArgsUsage: "[playlist-id...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, csv, markdown or txt", Value: "json"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
					&cli.StringFlag{Name: "service", Aliases: []string{"s"}, Usage: "Without ids, export only this provider"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent exports", Value: 5},
					&cli.FloatFlag{Name: "rate", Usage: "Playlist loads per second", Value: 5},
					&cli.BoolFlag{Name: "refresh", Usage: "Pull each playlist from its provider first"},
					&cli.BoolFlag{Name: "covers", Usage: "Download cover images (markdown)"},
				},
				Action: r.PlaylistsExport,
			},
			{
				Name:      "create",
				Usage:     "Create a playlist on a provider and mirror it",
				ArgsUsage: "<provider>",
				Flags: withOutput(
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Playlist name", Required: true},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Playlist description"},
					&cli.BoolFlag{Name: "public", Usage: "Make the playlist public"},
				),
				Action: r.PlaylistsCreate,
			},
			{
				Name:      "add",
				Usage:     "Append provider track ids to a mirrored playlist",
				ArgsUsage: "<playlist-id> <track-id...>",
				Flags:     outputFlags(),
				Action:    r.PlaylistsAdd,
			},
		},
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a provider catalog",
		ArgsUsage: "<provider> <query...>",
		Flags: withOutput(
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Comma separated: track, playlist", Value: "track"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum results per type", Value: 20},
			&cli.StringFlag{Name: "page", Usage: "Page cursor from a previous search"},
		),
		Action: r.Search,
	}
}

func recommendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "recommend",
		Usage:     "Recommend tracks related to seed tracks",
		ArgsUsage: "<provider> <track-id...>",
		Flags: withOutput(
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum tracks", Value: 20},
		),
		Action: r.Recommend,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Keep a target playlist mirroring a source playlist",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a sync between two mirrored playlists, picked interactively when no ids are given",
				ArgsUsage: "[<source-id> <target-id>]",
				Flags: withOutput(
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Label for the sync"},
				),
				Action: r.SyncCreate,
			},
			{
				Name:      "run",
				Usage:     "Run one sync now",
				ArgsUsage: "<sync-id>",
				Flags:     outputFlags(),
				Action:    r.SyncRun,
			},
			{
				Name:  "run-all",
				Usage: "Run every sync you own",
				Flags: withOutput(
					&cli.IntFlag{Name: "workers", Usage: "Concurrent syncs", Value: 3},
					&cli.FloatFlag{Name: "rate", Usage: "Syncs started per second", Value: 2},
				),
				Action: r.SyncRunAll,
			},
			{
				Name:   "list",
				Usage:  "List your syncs",
				Flags:  outputFlags(),
				Action: r.SyncList,
			},
			{
				Name:      "delete",
				Usage:     "Delete a sync",
				ArgsUsage: "<sync-id>",
				Action:    r.SyncDelete,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from [server] config)"},
		},
		Action: r.Serve,
	}
}
