package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/profile-ingest/internal/config"
	_ "github.com/johndauphine/profile-ingest/internal/driver/mysql"
	_ "github.com/johndauphine/profile-ingest/internal/driver/sqlite"
	"github.com/johndauphine/profile-ingest/internal/exitcodes"
	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/orchestrator"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "profile-ingest",
		Usage:   "Validate profiling documents and load them into MySQL or SQLite",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file (optional unless set explicitly)",
			},
			&cli.StringFlag{
				Name:  "state-file",
				Usage: "Use YAML ledger file instead of SQLite",
			},
			&cli.BoolFlag{
				Name:  "output-json",
				Usage: "Output JSON result to stdout on completion (logs go to stderr)",
			},
			&cli.StringFlag{
				Name:  "output-file",
				Usage: "Write JSON result to file on completion",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)

			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}

			// Keep stdout clean for the JSON result
			if c.Bool("output-json") || c.String("output-file") != "" {
				logging.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Ingest profiling documents",
				ArgsUsage: "[paths...]",
				Action:    runIngest,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Log statements instead of executing them",
					},
					&cli.BoolFlag{
						Name:  "offline",
						Usage: "Never connect; append statements to --script-file",
					},
					&cli.StringFlag{
						Name:  "script-file",
						Usage: "Offline SQL script output",
					},
					&cli.BoolFlag{
						Name:  "transaction-per-batch",
						Usage: "Commit each document separately instead of one transaction per run",
					},
					&cli.BoolFlag{
						Name:  "stop-on-error",
						Usage: "Abort on the first failing document",
					},
					&cli.BoolFlag{
						Name:  "skip-ingested",
						Usage: "Skip documents whose content was already ingested",
					},
					&cli.BoolFlag{
						Name:  "progress-json",
						Usage: "Emit JSON progress lines on stderr",
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Validate and compile documents without executing anything",
				ArgsUsage: "[paths...]",
				Action:    checkInputs,
			},
			{
				Name:  "schema",
				Usage: "Inspect the column type map",
				Subcommands: []*cli.Command{
					{
						Name:   "dump",
						Usage:  "Introspect the database and write the schema cache",
						Action: dumpSchema,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "out",
								Aliases: []string{"o"},
								Usage:   "Output path, '-' for stdout (default: schema.cache_file)",
							},
						},
					},
					{
						Name:   "show",
						Usage:  "Print the cached or introspected type map",
						Action: showSchema,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "table",
								Usage: "Show a single table",
							},
						},
					},
				},
			},
			{
				Name:  "history",
				Usage: "List ingest runs, or view details of a specific run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
				Subcommands: []*cli.Command{
					{
						Name:   "prune",
						Usage:  "Delete finished runs older than --days",
						Action: pruneHistory,
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "days",
								Value: 30,
								Usage: "Retention in days",
							},
						},
					},
				},
			},
			{
				Name:   "health-check",
				Usage:  "Test the database connection",
				Action: healthCheck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		code := exitcodes.FromError(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Exit code %d (%s)\n", code, exitcodes.Description(code))
		os.Exit(code)
	}
}

func runIngest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.IsSet("dry-run") {
		cfg.Ingest.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("offline") {
		cfg.Ingest.Offline = c.Bool("offline")
	}
	if c.IsSet("script-file") {
		cfg.Ingest.ScriptFile = c.String("script-file")
	}
	if c.IsSet("transaction-per-batch") {
		cfg.Ingest.TransactionPerBatch = c.Bool("transaction-per-batch")
	}
	if c.IsSet("stop-on-error") {
		cfg.Ingest.StopOnError = c.Bool("stop-on-error")
	}
	if c.IsSet("skip-ingested") {
		cfg.Ingest.SkipIngested = c.Bool("skip-ingested")
	}
	if err := cfg.Validate(); err != nil {
		return exitcodes.NewExitError(fmt.Errorf("invalid config: %w", err), exitcodes.ConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg, orchestrator.Options{ProgressJSON: c.Bool("progress-json")})
	if err != nil {
		return err
	}
	defer orch.Close()

	result, runErr := orch.Run(ctx, c.Args().Slice())
	if result != nil {
		if err := outputJSON(c, result); err != nil {
			logging.Warn("Failed to output JSON: %v", err)
		}
	}
	return runErr
}

func checkInputs(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg, orchestrator.Options{CompileOnly: true})
	if err != nil {
		return err
	}
	defer orch.Close()

	result, checkErr := orch.Check(ctx, c.Args().Slice())
	if result != nil {
		if err := outputJSON(c, result); err != nil {
			logging.Warn("Failed to output JSON: %v", err)
		}
	}
	return checkErr
}

func dumpSchema(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Schema.Refresh = true

	orch, err := orchestrator.New(c.Context, cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer orch.Close()

	out := c.String("out")
	if out == "" {
		// New already rewrote the cache
		fmt.Printf("Wrote %d tables to %s\n", len(orch.Schema()), cfg.Schema.CacheFile)
		return nil
	}
	return orch.DumpSchema(out)
}

func showSchema(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(c.Context, cfg, orchestrator.Options{CompileOnly: true})
	if err != nil {
		return err
	}
	defer orch.Close()

	return orch.ShowSchema(os.Stdout, c.String("table"))
}

func showHistory(c *cli.Context) error {
	orch, err := openLedger(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	if runID := c.String("run"); runID != "" {
		return orch.ShowRunDetails(os.Stdout, runID)
	}
	return orch.ShowHistory(os.Stdout)
}

func pruneHistory(c *cli.Context) error {
	orch, err := openLedger(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	return orch.PruneHistory(os.Stdout, c.Int("days"))
}

func healthCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(c.Context, cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer orch.Close()

	result, err := orch.HealthCheck(c.Context)
	if err != nil {
		return err
	}

	if c.Bool("output-json") || c.String("output-file") != "" {
		if err := outputJSON(c, result); err != nil {
			return err
		}
	} else {
		fmt.Printf("Target:  %s\n", result.Target)
		fmt.Printf("Latency: %dms\n", result.LatencyMs)
		fmt.Printf("Tables:  %d\n", result.TableCount)
		if result.Error != "" {
			fmt.Printf("Error:   %s\n", result.Error)
		}
	}

	if !result.Healthy {
		return exitcodes.NewExitError(fmt.Errorf("health check failed"), exitcodes.ConnectionError)
	}
	if !c.Bool("output-json") {
		fmt.Println("Healthy")
	}
	return nil
}

func openLedger(c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(c.Context, cfg, orchestrator.Options{LedgerOnly: true})
}

// loadConfig reads --config, falling back to environment and defaults when
// the default path does not exist.
func loadConfig(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) && !c.IsSet("config") {
		logging.Debug("No config file at %s; using environment and defaults", configPath)
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, exitcodes.NewExitError(fmt.Errorf("failed to load config: %w", err), exitcodes.ConfigError)
	}

	if sf := c.String("state-file"); sf != "" {
		cfg.State.StateFile = sf
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Rolling back...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func outputJSON(c *cli.Context, v any) error {
	if !c.Bool("output-json") && c.String("output-file") == "" {
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if path := c.String("output-file"); path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing result file: %w", err)
		}
	}
	if c.Bool("output-json") {
		fmt.Println(string(data))
	}
	return nil
}
