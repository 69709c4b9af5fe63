package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/config"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List the students of a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		withTopics, _ := cmd.Flags().GetBool("topics")

		a, err := wireApp(cmd, cfg, logger, wireOpts{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		students, err := a.platform.ListStudents(ctx, cfg.Runner.Dataset)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		if len(students) == 0 {
			fmt.Println("No students found.")
			return nil
		}

		fmt.Printf("%-38s  %-24s  %s\n", "ID", "Name", "Grade")
		for _, s := range students {
			fmt.Printf("%-38s  %-24s  %d\n", s.ID, truncate(s.Name, 24), s.GradeLevel)
			if !withTopics {
				continue
			}
			topics, err := a.platform.ListTopics(ctx, s.ID)
			if err != nil {
				return fmt.Errorf("list topics for %s: %w", s.ID, err)
			}
			for _, t := range topics {
				fmt.Printf("    %-34s  %s / %s (grade %d)\n", t.ID, t.SubjectName, t.Name, t.GradeLevel)
			}
		}
		return nil
	},
}

func init() {
	studentsCmd.Flags().String("dataset", "", "Dataset: mini_dev, dev or test (default from config)")
	studentsCmd.Flags().Bool("topics", false, "Also list each student's topics")
}
