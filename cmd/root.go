package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipedrive-export/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pipedrive-export",
	Short: "Export Pipedrive deals to per-pipeline spreadsheets",
	Long:  "Fetches every deal of the configured pipelines, resolves categorical field labels and stage names, writes one spreadsheet per pipeline and refreshes the consolidated workbook.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
