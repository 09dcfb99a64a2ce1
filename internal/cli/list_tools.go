/*
PURPOSE:
  Defines the 'list-tools' subcommand.
  Helps debug server startup and tool discovery.

REQUIREMENTS:
  User-specified:
  - List the tools each server advertises.

  Implementation-discovered:
  - Useful validation step before a full run, e.g. after a server renames a tool.

ARCHITECTURE INTEGRATION:
  - Calls: internal/mcp.Start, Session.Initialize, Session.ListTools

ERROR HANDLING:
  - Prints the error for a server and moves on to the next one.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  workload-bench list-tools --server-filter brew

RELATED FILES:
  - internal/mcp/session.go
*/

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/engine"
	"github.com/daryltucker/workload-bench/internal/mcp"
	"github.com/daryltucker/workload-bench/internal/model"
)

var listToolsFilter string

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "Start each server and print the tools it advertises",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, spec := range config.FilterServers(cfg.Servers, listToolsFilter) {
			listTools(out, cfg, spec)
		}
		return nil
	},
}

func listTools(out io.Writer, cfg *config.Config, spec model.ServerSpec) {
	fmt.Fprintf(out, "%s\n", spec.Name)
	if note := engine.CommandNote(spec.Command); note != "" {
		fmt.Fprintf(out, "  %s\n", note)
		return
	}

	session, err := mcp.Start(spec, mcp.Options{PollInterval: cfg.PollInterval, ClientVersion: Version})
	if err != nil {
		fmt.Fprintf(out, "  Error: %v\n", err)
		return
	}
	defer session.Close()

	if _, err := session.Initialize(cfg.ProtocolVersions, cfg.PhaseTimeout); err != nil {
		fmt.Fprintf(out, "  Error: initialize: %v\n", err)
		return
	}
	_, tools, err := session.ListTools(cfg.PhaseTimeout)
	if err != nil {
		fmt.Fprintf(out, "  Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "  protocol %s, %d tools\n", session.ProtocolVersion(), len(tools))

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	for _, t := range tools {
		desc := strings.TrimSpace(strings.SplitN(t.Description, "\n", 2)[0])
		if desc == "" {
			fmt.Fprintf(out, "  - %s\n", t.Name)
			continue
		}
		fmt.Fprintf(out, "  - %s: %s\n", t.Name, desc)
	}
}

func init() {
	rootCmd.AddCommand(listToolsCmd)
	listToolsCmd.Flags().StringVar(&listToolsFilter, "server-filter", "", "Only servers whose name contains this (case-insensitive)")
}
