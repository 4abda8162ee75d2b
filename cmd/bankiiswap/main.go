package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "bankiiswap",
		Usage: "Resolve tokens, quote and execute swaps on Solana through Jupiter",
		Description: `A command-line client for the BankiiSwap core.

Configuration is read from the environment (and .env), the same way the API server reads it.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			resolveCommand(),
			quoteCommand(),
			swapCommand(),
			maxCommand(),
			historyCommand(),
			portfolioCommand(),
			subscribeCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
