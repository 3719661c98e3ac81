package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dentexa/import-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "import-cli",
	Short: "Bulk client and patient import for the practice records store",
	Long:  "Reads legacy desktop exports (CSV or XLSX), reconciles each row against the records API, and commits approved creates and updates in bounded concurrent batches.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
