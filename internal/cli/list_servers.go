package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/engine"
	"github.com/daryltucker/workload-bench/internal/model"
)

var listServersFilter string

var listServersCmd = &cobra.Command{
	Use:   "list-servers",
	Short: "Print the server catalog and whether each command is available",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printServers(cmd.OutOrStdout(), config.FilterServers(cfg.Servers, listServersFilter))
		return nil
	},
}

func printServers(out io.Writer, servers []model.ServerSpec) {
	for _, s := range servers {
		status := "available"
		if note := engine.CommandNote(s.Command); note != "" {
			status = note
		}
		fmt.Fprintf(out, "%s\n  command: %s %v\n  status: %s\n", s.Name, s.Command, s.Args, status)
		if s.Cwd != "" {
			fmt.Fprintf(out, "  cwd: %s\n", s.Cwd)
		}
		ids := make([]string, 0, len(s.Workloads))
		for id := range s.Workloads {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s -> %s\n", id, s.Workloads[id].Name)
		}
		if s.Target != nil {
			fmt.Fprintf(out, "  target: %s via %s\n", s.Target.Kind, s.Target.Tool)
		}
		if s.InstallHint != "" && status != "available" {
			fmt.Fprintf(out, "  install: %s\n", s.InstallHint)
		}
	}
}

func init() {
	rootCmd.AddCommand(listServersCmd)
	listServersCmd.Flags().StringVar(&listServersFilter, "server-filter", "", "Only servers whose name contains this (case-insensitive)")
}
