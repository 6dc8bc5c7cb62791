package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/mcp"
	"github.com/hpungsan/poetrybox/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"boxes": true, "reel": true, "board": true, "drag": true,
	"list": true, "remove": true, "compose": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
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
                 _              _
   _ __  ___ ___| |_ _ _ _  _  | |__  _____ __
  | '_ \/ _ Y -_)  _| '_| || | | '_ \/ _ \ \ /
  | .__/\___\___|\__|_|  \_, | |_.__/\___/_\_\
  |_|                    |__/

  Magnetic poetry, one word card at a time

  Usage: poetrybox <command> [options]
         poetrybox --help

  MCP server mode requires piped input.`)
}

// warnUnknownTools logs disabled tool and type names that match nothing.
func warnUnknownTools(cfg *config.Config, logger *log.Logger) {
	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		logger.Printf("warning: disabled_tools: unknown tool %q", name)
	}
	for _, name := range mcp.ValidateDisabledTypes(cfg.DisabledTypes) {
		logger.Printf("warning: disabled_types: unknown type %q", name)
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := log.New(os.Stderr, "poetrybox: ", log.LstdFlags)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".poetrybox")

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	sess := ops.NewSession(logger)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(database, cfg, sess)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'poetrybox --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	warnUnknownTools(cfg, logger)
	if err := mcp.Run(database, cfg, sess, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
