package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/engine"
	"github.com/relaynote/relaynote/internal/errors"
	"github.com/relaynote/relaynote/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app) *cli.App {
	cliApp := &cli.App{
		Name:    "relaynote",
		Usage:   "GitHub release to CRM note sync",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(a),
			syncCmd(a),
			mappingsCmd(a),
			runsCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP sync API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8470, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(a.db, a.cfg, a.engine, a.fetcher, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a release-to-note sync and print the summary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mapping", Aliases: []string{"m"}, Usage: "Sync only this mapping ID"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Compute without publishing notes or advancing watermarks"},
		},
		Action: func(c *cli.Context) error {
			summary, err := a.engine.Run(context.Background(), engine.RunInput{
				MappingID: c.String("mapping"),
				DryRun:    c.Bool("dry-run"),
				Trigger:   "manual",
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(summary)
		},
	}
}

// mappingsCmd creates the mappings command group.
func mappingsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "mappings",
		Usage: "Manage repo-to-company mappings",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a mapping",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Required: true, Usage: "GitHub repository owner"},
					&cli.StringFlag{Name: "repo", Aliases: []string{"r"}, Required: true, Usage: "GitHub repository name"},
					&cli.StringFlag{Name: "company", Aliases: []string{"c"}, Usage: "CRM company ID"},
				},
				Action: func(c *cli.Context) error {
					m, err := db.CreateMapping(a.db, c.String("owner"), c.String("repo"), c.String("company"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(m)
				},
			},
			{
				Name:  "list",
				Usage: "List all mappings",
				Action: func(c *cli.Context) error {
					mappings, err := db.ListMappings(a.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"mappings": mappings})
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a mapping",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewValidation("mapping id is required"))
					}
					id := c.Args().First()
					if err := db.DeleteMapping(a.db, id); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"deleted": id})
				},
			},
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum runs to return"},
		},
		Action: func(c *cli.Context) error {
			runs, err := db.ListRuns(a.db, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"runs": runs})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := err.(*errors.SyncError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
