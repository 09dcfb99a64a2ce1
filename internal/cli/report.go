package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/output"
)

var reportCmd = &cobra.Command{
	Use:   "report <normalized_workloads_*.json>",
	Short: "Regenerate the headline tables from an existing results document",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := output.ReadDocument(args[0])
		if err != nil {
			return usageError(err)
		}
		files, err := output.GenerateReports(doc, args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
