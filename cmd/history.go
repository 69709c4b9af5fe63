package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/llm"
	"github.com/abhisek/tutorbench/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded assessment sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")
		student, _ := cmd.Flags().GetString("student")
		status, _ := cmd.Flags().GetString("status")

		a, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.store.SessionRepo().QuerySessions(cmd.Context(), store.SessionQuery{
			Limit: limit, RunID: runID, StudentID: student, Status: status,
		})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %-16s  %-16s  %-9s  %-5s  %-5s  %s\n",
			"ID", "Timestamp", "Student", "Topic", "Status", "Level", "Turns", "Stop")
		fmt.Println(strings.Repeat("─", 130))
		for _, r := range recs {
			stop := r.StopReason
			if r.Status == store.SessionFailed {
				stop = truncate(r.ErrorMessage, 40)
			}
			fmt.Printf("%-36s  %-19s  %-16s  %-16s  %-9s  %-5d  %-5d  %s\n",
				r.ID,
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(r.StudentID, 16),
				truncate(r.TopicID, 16),
				r.Status,
				r.FinalLevel,
				r.Turns,
				stop,
			)
		}

		if runID != "" {
			completed, failed, err := a.store.SessionRepo().OutcomeCounts(cmd.Context(), runID)
			if err != nil {
				return err
			}
			fmt.Printf("\nRun %s: %d completed, %d failed\n", runID, completed, failed)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		repo := a.store.SessionRepo()
		rec, err := repo.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("session %s not found", args[0])
		}

		fmt.Printf("Session:       %s\n", rec.ID)
		fmt.Printf("Run:           %s\n", rec.RunID)
		fmt.Printf("Time:          %s\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Student:       %s\n", rec.StudentID)
		fmt.Printf("Topic:         %s\n", rec.TopicID)
		fmt.Printf("Conversation:  %s\n", rec.ConversationID)
		fmt.Printf("Status:        %s\n", rec.Status)
		if rec.Status == store.SessionFailed {
			fmt.Printf("Error:         %s\n", rec.ErrorMessage)
			return nil
		}
		fmt.Printf("Final level:   %d (mean estimate %.2f, scorer %d)\n", rec.FinalLevel, rec.MeanEstimate, rec.ScoringLevel)
		fmt.Printf("Stopped:       %s after %d turns in %dms\n", rec.StopReason, rec.Turns, rec.DurationMs)

		to := rec.Timestamp
		from := to.Add(-time.Duration(rec.DurationMs) * time.Millisecond)
		usage, err := a.store.EventRepo().LLMUsageForSession(ctx, rec.StudentID, rec.TopicID, from, to)
		if err != nil {
			return err
		}
		if len(usage) > 0 {
			byModel := make(map[string]llm.Usage, len(usage))
			var calls, in, out int
			for _, u := range usage {
				byModel[u.Model] = llm.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
				calls += u.Calls
				in += u.InputTokens
				out += u.OutputTokens
			}
			cost, unknown := llm.SessionCost(byModel)
			line := fmt.Sprintf("%d calls, %d in / %d out tokens, %s", calls, in, out, formatCost(cost))
			if len(unknown) > 0 {
				line += " (partial)"
			}
			fmt.Printf("LLM usage:     %s\n", line)
		}

		turns, err := repo.SessionTurns(ctx, rec.ID)
		if err != nil {
			return err
		}
		sep := strings.Repeat("─", 60)
		for _, t := range turns {
			fmt.Println()
			fmt.Println(sep)
			fmt.Printf("TURN %d  [%s]  %s, confidence %d/5\n", t.Turn, t.Difficulty, t.Correctness, t.ConfidenceLevel)
			fmt.Println(sep)
			fmt.Printf("Tutor:    %s\n", t.Question)
			fmt.Printf("Student:  %s\n", t.StudentResponse)
			if len(t.Strengths) > 0 {
				fmt.Printf("Strengths: %s\n", strings.Join(t.Strengths, "; "))
			}
			if len(t.KnowledgeGaps) > 0 {
				fmt.Printf("Gaps:      %s\n", strings.Join(t.KnowledgeGaps, "; "))
			}
			fmt.Printf("Estimate:  level %d, confidence %.2f, stable for %d\n",
				t.EstimatedLevel, t.LevelConfidence, t.StabilityCount)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	historyListCmd.Flags().String("run", "", "Filter by run ID")
	historyListCmd.Flags().String("student", "", "Filter by student ID")
	historyListCmd.Flags().String("status", "", "Filter by status (completed, failed)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
