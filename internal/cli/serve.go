package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/assistant"
	"github.com/randalmurphal/duckling/internal/config"
	"github.com/randalmurphal/duckling/internal/db"
	"github.com/randalmurphal/duckling/internal/engine"
	"github.com/randalmurphal/duckling/internal/events"
	"github.com/randalmurphal/duckling/internal/executor"
	"github.com/randalmurphal/duckling/internal/llm"
	"github.com/randalmurphal/duckling/internal/lock"
	"github.com/randalmurphal/duckling/internal/precommit"
	"github.com/randalmurphal/duckling/internal/proc"
	"github.com/randalmurphal/duckling/internal/server"
	"github.com/randalmurphal/duckling/internal/settings"
)

// newServeCmd creates the serve command for the duckling server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the duckling server",
		Long: `Start the duckling server: the task engine plus its HTTP API.

The server owns all task state. It schedules pending work, drives each task
through branch, code, checks, commit, and pull request, polls open PRs for
review feedback, and exposes REST endpoints plus a websocket stream that the
other duckling commands consume.

Example:
  duckling serve                      # Listen on the configured address
  duckling serve --listen :3000       # Listen on a custom address
  duckling serve --db ./duckling.db   # Use a specific database file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Server.Addr = listen
			}
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				cfg.DB.Path = dbPath
			}
			if cmd.Flags().Changed("tick") {
				tick, _ := cmd.Flags().GetInt("tick")
				cfg.Scheduler.TickSeconds = tick
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().String("listen", "", "address to listen on (overrides config)")
	cmd.Flags().String("db", "", "path to the task database (overrides config)")
	cmd.Flags().Int("tick", 0, "scheduler interval in seconds (overrides config)")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger := newLogger(cfg)
	pg := strings.EqualFold(cfg.DB.Driver, "postgres")

	if !pg {
		// One server per data directory, or the single-worker ordering
		// guarantee is gone.
		guard := lock.New(filepath.Dir(cfg.DB.Path))
		if err := guard.Acquire(); err != nil {
			return err
		}
		defer guard.Release()
	}

	var (
		store *db.DB
		err   error
	)
	if pg {
		store, err = db.OpenPostgres(cfg.DB.DSN)
	} else {
		store, err = db.Open(cfg.DB.Path)
	}
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	sets := settings.New(store)
	if err := sets.Seed(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	bus := events.NewBus(events.WithLogger(logger))
	runner := proc.NewExecRunner()

	exec := executor.New(
		executor.WithLogger(logger),
		executor.WithHook(engine.LogHook(logger)),
	)
	defer exec.Close()

	// The summary generator reads its key, endpoint, and model once at
	// startup. Changing them via settings requires a restart.
	client := llm.NewClient(llm.Config{
		APIKey:  sets.OpenAIAPIKey(ctx),
		BaseURL: sets.LLMBaseURL(ctx),
		Model:   sets.LLMModel(ctx),
	})

	eng := engine.New(engine.Config{
		Store:        store,
		Settings:     sets,
		Bus:          bus,
		Executor:     exec,
		Bridge:       assistant.NewCLIBridge(runner, sets, logger),
		Generator:    llm.NewGenerator(client, logger),
		Precommit:    precommit.New(runner, precommit.DefaultCheckTimeout, logger),
		Logger:       logger,
		TickInterval: cfg.TickInterval(),
	})

	srv := server.New(server.Config{
		Addr:   cfg.Server.Addr,
		Engine: eng,
		Store:  store,
		Logger: logger,
	})

	if !quiet {
		target := cfg.DB.Path
		if pg {
			target = "postgres"
		}
		fmt.Printf("Starting duckling server on %s (db: %s)...\n", cfg.Server.Addr, target)
		fmt.Println("Press Ctrl+C to stop")
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		if !quiet {
			fmt.Println("\nShutting down...")
		}
		cancel()
	}()

	eng.Start(ctx)
	defer eng.Stop()

	return srv.StartContext(ctx)
}

// newLogger builds the process logger from the log section of the config.
// --verbose forces debug level regardless of the configured one.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
