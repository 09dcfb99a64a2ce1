/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the workload suite against every configured server.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - Specific flags for overrides.
  - Optional results store when a DSN is configured.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config only when the flag was set.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config, internal/store

ERROR HANDLING:
  - Config, flag and preflight failures exit 2.
  - Output failures exit 1.
  - Store failures are logged and the run continues without it.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Store -> Engine.Run.

USAGE:
  workload-bench run -o results/normalized_workloads_local.json

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/engine"
	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/store"
)

var (
	iterationsOverride   int
	warmupOverride       int
	phaseTimeoutOverride time.Duration
	callTimeoutOverride  time.Duration
	outputOverride       string
	strictOverride       bool
	minBytesOverride     []string
	minItemsOverride     []string
	serverFilter         string
	workloadsOverride    []string
	protocolOverride     []string
	dsnOverride          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the workload suite",
	Long: `Executes the standardized workloads against every configured MCP server.
Each server is driven in turn:
1. Spawn: starts the server process over stdio.
2. Handshake: initialize (with protocol version fallback) and tools/list.
3. Workloads: warmup and measured tools/call iterations, each validated.

The JSON document is rewritten after every call, and headline tables (CSV and
Markdown) are written next to it when the run ends.`,
	Example: `  # Run with defaults (uses workload-bench.yaml or the built-in catalog)
  workload-bench run -o results/normalized_workloads_local.json

  # Only servers whose name contains "brew", two workloads
  workload-bench run -o out.json --server-filter brew --workloads W1_RECENT,W2_SEARCH

  # Relax the byte threshold for one workload
  workload-bench run -o out.json --min-bytes W2_SEARCH=50

  # Publish results to Postgres as well
  workload-bench run -o out.json --dsn postgres://bench@localhost/bench`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputOverride == "" {
			return usageError(errors.New(`required flag "output" not set`))
		}

		// 1. Load Config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// 2. Overrides
		applyRunFlags(cmd, cfg)
		minBytes, err := config.ParseOverrides(minBytesOverride, "--min-bytes")
		if err != nil {
			return usageError(err)
		}
		minItems, err := config.ParseOverrides(minItemsOverride, "--min-items")
		if err != nil {
			return usageError(err)
		}
		if err := cfg.Validate(); err != nil {
			return usageError(err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := engine.Options{
			MinBytesOverrides: minBytes,
			MinItemsOverrides: minItems,
			ClientVersion:     Version,
		}

		// 3. Optional store
		if cfg.DSN != "" {
			if s := openStore(ctx, cfg.DSN); s != nil {
				defer s.Close()
				opts.Sink = s
			}
		}

		// 4. Execution
		_, err = engine.Run(ctx, cfg, opts)
		if errors.Is(err, engine.ErrPreflight) {
			return usageError(err)
		}
		return err
	},
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Iterations = iterationsOverride
	}
	if flags.Changed("warmup") {
		cfg.Warmup = warmupOverride
	}
	if flags.Changed("phase-timeout") {
		cfg.PhaseTimeout = phaseTimeoutOverride
	}
	if flags.Changed("call-timeout") {
		cfg.CallTimeout = callTimeoutOverride
	}
	if flags.Changed("strict-validity") {
		cfg.StrictValidity = strictOverride
	}
	if flags.Changed("server-filter") {
		cfg.ServerFilter = serverFilter
	}
	if flags.Changed("workloads") {
		cfg.Workloads = workloadsOverride
	}
	if flags.Changed("protocol-version") {
		cfg.ProtocolVersions = protocolOverride
	}
	if flags.Changed("dsn") {
		cfg.DSN = dsnOverride
	}
	cfg.Output = outputOverride
}

// openStore returns nil when the database cannot be used.
func openStore(ctx context.Context, dsn string) *store.Store {
	s, err := store.Open(ctx, dsn)
	if err != nil {
		output.Logger.Error("Results store unavailable, continuing without it", "error", err)
		return nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		output.Logger.Error("Results store schema failed, continuing without it", "error", err)
		s.Close()
		return nil
	}
	return s
}

func init() {
	rootCmd.AddCommand(runCmd)

	defaults := config.DefaultConfig()
	flags := runCmd.Flags()
	flags.IntVar(&iterationsOverride, "iterations", defaults.Iterations, "Measured calls per workload")
	flags.IntVar(&warmupOverride, "warmup", defaults.Warmup, "Unmeasured warmup calls per workload")
	flags.DurationVar(&phaseTimeoutOverride, "phase-timeout", defaults.PhaseTimeout, "Deadline for initialize and tools/list")
	flags.DurationVar(&callTimeoutOverride, "call-timeout", defaults.CallTimeout, "Deadline for each tools/call")
	flags.StringVarP(&outputOverride, "output", "o", "", "Path of the JSON results document (required)")
	flags.BoolVar(&strictOverride, "strict-validity", defaults.StrictValidity, "Require payloads to pass the size thresholds")
	flags.StringArrayVar(&minBytesOverride, "min-bytes", nil, "Per-workload byte threshold, WORKLOAD_ID=VALUE (repeatable)")
	flags.StringArrayVar(&minItemsOverride, "min-items", nil, "Per-workload item threshold, WORKLOAD_ID=VALUE (repeatable)")
	flags.StringVar(&serverFilter, "server-filter", "", "Only run servers whose name contains this (case-insensitive)")
	flags.StringSliceVar(&workloadsOverride, "workloads", nil, "Comma-separated subset of workload ids")
	flags.StringArrayVar(&protocolOverride, "protocol-version", nil, "Protocol version to offer, in order (repeatable)")
	flags.StringVar(&dsnOverride, "dsn", "", "Postgres DSN for the results store (defaults to DATABASE_URL)")
}
