package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/config"
	"github.com/abhisek/tutorbench/internal/runner"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a saved results file for MSE scoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			return fmt.Errorf("--input is required")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		truthPath, _ := cmd.Flags().GetString("truth")

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetString("dataset"); d != "" {
			cfg.Runner.Dataset = d
		}
		if err := config.ValidateDataset(cfg.Runner.Dataset); err != nil {
			return err
		}

		results, err := runner.ReadResults(input)
		if err != nil {
			return err
		}
		preds := results.Predictions()
		if len(preds) == 0 {
			return fmt.Errorf("%s contains no predictions", input)
		}
		fmt.Printf("Loaded %d predictions for %d students from %s\n", len(preds), len(results.Results), input)

		if truthPath != "" {
			mse, err := localMSE(truthPath, preds)
			if err != nil {
				return err
			}
			fmt.Printf("Local MSE: %.4f\n", mse)
		}

		if dryRun {
			n := min(5, len(preds))
			for _, p := range preds[:n] {
				fmt.Printf("  %s  %s  %.0f\n", p.StudentID, p.TopicID, p.PredictedLevel)
			}
			if len(preds) > n {
				fmt.Printf("  ... %d more\n", len(preds)-n)
			}
			return nil
		}

		a, err := wireApp(cmd, cfg, logger, wireOpts{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.platform.SubmitPredictions(cmd.Context(), preds, cfg.Runner.Dataset)
		if err != nil {
			return fmt.Errorf("submit predictions: %w", err)
		}
		fmt.Printf("MSE (%s): %.4f\n", cfg.Runner.Dataset, res.MSEScore)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringP("input", "i", "", "Results file written by evaluate")
	submitCmd.Flags().String("dataset", "", "Dataset the results belong to (default from config)")
	submitCmd.Flags().Bool("dry-run", false, "Validate and preview without submitting")
	submitCmd.Flags().String("truth", "", "Ground-truth file for a local MSE")
}
