package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daryltucker/workload-bench/internal/assets"
	"github.com/daryltucker/workload-bench/internal/output"
)

var functionsDir string

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Manage JQ functions for result analysis",
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install JQ functions for results documents (default ~/.config/vecq/functions/)",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := functionsDir
		if targetDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			targetDir = filepath.Join(home, ".config", "vecq", "functions")
		}
		output.Logger.Info("Installing JQ functions...", "target", targetDir)

		count, err := installFunctions(assets.Functions, targetDir)
		if err != nil {
			return err
		}
		output.Logger.Info("Installation Complete", "total_files", count)
		return nil
	},
}

// installFunctions copies every file under functions/ in src into targetDir.
// Files that cannot be copied are logged and skipped.
func installFunctions(src fs.FS, targetDir string) (int, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create target directory %s: %w", targetDir, err)
	}

	entries, err := fs.ReadDir(src, "functions")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded functions: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		content, err := fs.ReadFile(src, "functions/"+entry.Name())
		if err != nil {
			output.Logger.Error("Failed to read embedded file", "file", entry.Name(), "error", err)
			continue
		}

		targetPath := filepath.Join(targetDir, entry.Name())
		if err := os.WriteFile(targetPath, content, 0644); err != nil {
			output.Logger.Error("Failed to write to target", "path", targetPath, "error", err)
			continue
		}

		output.Logger.Info("Installed function", "name", entry.Name())
		count++
	}
	return count, nil
}

func init() {
	installCmd.Flags().StringVar(&functionsDir, "dir", "", "Install into this directory instead")
	functionsCmd.AddCommand(installCmd)
	rootCmd.AddCommand(functionsCmd)
}
