/*
PURPOSE:
  Defines the root Cobra command for the workload-bench CLI.
  Handles global flags, logging setup and the exit-code contract.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.
  - Exit 2 on argument, config or preflight failure, 1 on anything else.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Logging must be configured from the environment before any command runs.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/workload-bench/main.go
  - Calls: Child commands (run, list-servers, list-tools, report)
  - Modifies: output.Logger

ERROR HANDLING:
  - Returns *ExitError to main.go; any other error means exit code 1.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/workload-bench/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/output"
)

// Exit codes returned by the binary.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// Version is stamped into the initialize clientInfo.
var Version = "0.1.0"

// ExitError carries the process exit code for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// ExitCode maps an error returned by Execute onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "workload-bench",
		Short:         "Benchmark and conformance harness for stdio MCP servers",
		Long:          `Runs standardized read-only workloads against MCP tool servers and reports latency and payload validity. Use 'run --help' for benchmark options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Config errors surface in the subcommand; here only the log settings matter.
			cfg := config.DefaultConfig()
			_ = config.LoadEnvironment(cfg, config.EnvFiles)
			output.Configure(os.Stderr, cfg.Env.LogLevel, cfg.Env.LogFormat)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and validates it. Failures are usage errors.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./workload-bench.yaml)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(fmt.Errorf("%w\nSee '%s --help'", err, cmd.CommandPath()))
	})
}
