package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/config"
)

var (
	cfg       *config.Config
	rulesFile string
)

var rootCmd = &cobra.Command{
	Use:   "claims-cli",
	Short: "Automated medical claim adjudication pipeline",
	Long:  "Extracts entities from clinical notes, retrieves candidate ICD-10/CPT codes, synthesizes a coding decision via an LLM judge, and adjudicates against payer rules.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if rulesFile != "" {
			cfg.Rules.CrosswalkFile = rulesFile
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "necessity crosswalk YAML overriding the built-in rulepack")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
