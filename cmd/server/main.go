/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the ticket ledger. Runs the HTTP server and the
  offline journal tools.

COMMANDS:
  serve    Open the ledger and serve the HTTP API (default)
  inspect  Print the state rebuilt from the journal
  verify   Replay the journal and check every invariant

GLOBAL FLAGS:
  --config    YAML configuration file (optional)
  --db        SQLite database path, overrides database.path
              Use ":memory:" for an in-memory database
  --env-file  dotenv file loaded before configuration (default .env,
              ignored when absent)

ENVIRONMENT:
  TICKET_LEDGER_DB, TICKET_LEDGER_PORT, TICKET_LEDGER_LOG_LEVEL override
  the configuration file. Flags override both. Variables already set in
  the process win over the dotenv file.

EXAMPLES:
  # Serve with defaults (tickets.db, port 8080)
  ./server serve

  # Serve from a config file on another port
  ./server serve --config ./ledger.yaml --port 3000

  # Check a database copied from production
  ./server verify --db ./backup/tickets.db

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - inspect.go: inspect and verify
  - infra/config.go: Configuration keys
*/
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/warp/ticket-ledger/infra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	EnvFile    string
}

// load reads the configuration and applies flag overrides.
func (o *RootOptions) load() (*infra.Config, error) {
	cfg, err := infra.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	return cfg, nil
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Ticket ledger server",
		Long:  "Fixed-supply ticket sale with swaps and fee-bearing resale, journaled to SQLite.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file"))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with TICKET_LEDGER_* variables")

	serve := NewServeCommand(opts)
	cmd.AddCommand(serve)
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	// Bare invocation serves.
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	return cmd
}

// loadEnvFile loads variables that are not already set in the process
// environment. A missing file is only an error when it was asked for.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
