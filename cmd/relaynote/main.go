package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/crm"
	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/engine"
	"github.com/relaynote/relaynote/internal/github"
	"github.com/relaynote/relaynote/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "sync": true, "mappings": true, "runs": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
             _                        _
   _ __ ___| | __ _ _  _ _ _  ___ | |_ ___
  | '__/ _ \ |/ _' | || | ' \/ _ \|  _/ -_)
  |_|  \___/_|\__,_|\_, |_||_\___/ \__\___|
                    |__/

  GitHub release to CRM note sync

  Usage: relaynote <command> [options]
         relaynote --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".relaynote")

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	app := newApp(database, cfg)

	// CLI mode: known subcommand
	if isCLIMode() {
		cliApp := newCLIApp(app)
		if err := cliApp.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'relaynote --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, app.engine, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app wires the shared service graph used by every mode.
type app struct {
	db      *sql.DB
	cfg     *config.Config
	fetcher *github.Client
	engine  *engine.Engine
}

func newApp(database *sql.DB, cfg *config.Config) *app {
	fetcher := github.NewClient(cfg.GitHubBaseURL, cfg.GitHubToken)
	publisher := crm.NewClient(cfg.HubSpotBaseURL, cfg.HubSpotToken)
	return &app{
		db:      database,
		cfg:     cfg,
		fetcher: fetcher,
		engine:  engine.New(database, cfg, fetcher, publisher),
	}
}
