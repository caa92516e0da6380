/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the league engine. The root command carries the
  configuration flags shared by every subcommand; the subcommands open the
  league and either serve it over HTTP or run a single operation against it.

COMMANDS:
  serve     Run the HTTP API (default when no subcommand is given)
  advance   Perform one phase transition and print it
  sweep     Delete games from old seasons

CONFIGURATION:
  Layered, later layers winning:
  1. Built-in defaults
  2. YAML file given by --config
  3. LEAGUE_* environment variables
  4. Command-line flags (--db, --port, --log-level)

EXAMPLES:
  # Serve with a file database
  ./server serve --db=./data/league.db

  # Serve in memory on another port
  ./server --db=":memory:" --port=3000

  # Start the next phase from a script
  ./server advance --config=league.yaml

SEE ALSO:
  - serve.go: HTTP server and graceful shutdown
  - admin.go: One-shot commands
  - config/config.go: Configuration layers
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/league-engine/config"
	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/storage"
	"github.com/warp/league-engine/store/sqlite"
)

var (
	configPath string // Optional YAML config file
	dbPath     string // Overrides server.db_path
	port       int    // Overrides server.port
	logLevel   string // Overrides server.log_level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "league-engine",
	Short: "Season lifecycle engine for a simulated sports league",
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (\":memory:\" for in-memory)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// loadConfig resolves the configuration and applies it to the global logger.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Server.DBPath = dbPath
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("log-level") {
		cfg.Server.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", cfg.Server.LogLevel)
	}
	logrus.SetLevel(level)
	return cfg
}

// app is everything a command needs once the league is open.
type app struct {
	cfg    config.Config
	log    *logrus.Entry
	store  *sqlite.Store
	coord  *storage.Coordinator
	orch   *league.Orchestrator
	league *league.League
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	log := logrus.WithField("db", cfg.Server.DBPath)

	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	coord := storage.NewCoordinator(store, log)
	lg, err := league.Open(ctx, coord, cfg.League.ToLeague())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open league: %w", err)
	}

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		coord:  coord,
		orch:   league.NewOrchestrator(coord, log),
		league: lg,
	}, nil
}

// close flushes batched writes, waits for hooks and closes the database.
func (a *app) close(ctx context.Context) {
	if _, err := a.coord.Flush(ctx); err != nil {
		a.log.WithError(err).Error("final flush failed, batched results lost")
	}
	a.orch.WaitHooks()
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("closing database")
	}
}
