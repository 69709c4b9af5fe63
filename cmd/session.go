package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/config"
	"github.com/abhisek/tutorbench/internal/judge"
	"github.com/abhisek/tutorbench/internal/ui/theme"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run a single assessment session",
	Long: `Run one adaptive conversation and print the predicted level. Without
--student or --topic the first student of the dataset and its first topic are used.`,
	RunE: runSingleSession,
}

func init() {
	sessionCmd.Flags().String("student", "", "Student ID")
	sessionCmd.Flags().String("topic", "", "Topic ID")
	sessionCmd.Flags().String("dataset", "", "Dataset used to pick a default student")
	sessionCmd.Flags().Int("max-turns", 0, "Local turn budget (default from config)")
}

func runSingleSession(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if d, _ := cmd.Flags().GetString("dataset"); d != "" {
		cfg.Runner.Dataset = d
	}
	if m, _ := cmd.Flags().GetInt("max-turns"); m > 0 {
		cfg.Assessment.MaxTurns = m
	}
	if err := config.ValidateDataset(cfg.Runner.Dataset); err != nil {
		return err
	}

	a, err := wireApp(cmd, cfg, logger, wireOpts{assess: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	studentID, _ := cmd.Flags().GetString("student")
	topicID, _ := cmd.Flags().GetString("topic")

	if studentID == "" {
		students, err := a.platform.ListStudents(ctx, cfg.Runner.Dataset)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		if len(students) == 0 {
			return fmt.Errorf("dataset %s has no students", cfg.Runner.Dataset)
		}
		studentID = students[0].ID
	}
	if topicID == "" {
		topics, err := a.platform.ListTopics(ctx, studentID)
		if err != nil {
			return fmt.Errorf("list topics: %w", err)
		}
		if len(topics) == 0 {
			return fmt.Errorf("student %s has no topics", studentID)
		}
		topicID = topics[0].ID
	}

	r := a.runner(1, nil)
	level, err := r.RunSession(ctx, studentID, topicID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), theme.Card.Render(
		theme.Title.Render("Session complete")+"\n\n"+
			theme.Label.Render("Student")+theme.Value.Render(studentID)+"\n"+
			theme.Label.Render("Topic")+theme.Value.Render(topicID)+"\n"+
			theme.Label.Render("Predicted level")+theme.Good.Render(fmt.Sprintf("%d (%s)", level, judge.LabelForLevel(level)))+"\n"+
			theme.Hint.Render(fmt.Sprintf("Transcript: tutorbench history list --run %s", r.RunID())),
	))
	return nil
}
