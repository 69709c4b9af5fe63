package cmd

import (
	"github.com/abhisek/tutorbench/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutorbench",
	Short: "Adaptive LLM assessment of simulated students",
	Long: `tutorbench holds short adaptive tutoring conversations with simulated students,
infers each student's level (1-5) per topic and submits the predictions for scoring.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().String("env-file", "", "Path to a dotenv file (default .env)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides TUTORBENCH_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(studentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the configured store path, then TUTORBENCH_DB, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, configured string) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if configured != "" {
		return configured, store.EnsureDir(configured)
	}
	return store.DefaultDBPath()
}
