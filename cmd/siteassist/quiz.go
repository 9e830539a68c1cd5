package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/quiz"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Manage the quiz question bank",
}

var quizSeedCmd = &cobra.Command{
	Use:   "seed [bank.yaml]",
	Short: "Upsert questions by qid from a bank file, or the built-in bank",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			questions []database.QuizQuestion
			err       error
		)
		if len(args) == 1 {
			questions, err = quiz.LoadBank(args[0])
		} else {
			questions, err = quiz.DefaultBank()
		}
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := quiz.Seed(context.Background(), db, questions)
		if err != nil {
			return fmt.Errorf("seeding after %d questions: %w", n, err)
		}
		fmt.Printf("Seeded %d questions\n", n)
		return nil
	},
}

var quizStatsCmd = &cobra.Command{
	Use:   "stats [client-id]",
	Short: "Show a client's quiz statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		stats, err := newQuizEngine(db, log).Stats(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Client: %s\n", args[0])
		fmt.Printf("  Answered: %d\n", stats.Total)
		fmt.Printf("  Correct: %d\n", stats.Correct)
		fmt.Printf("  Streak: %d\n", stats.Streak)
		if stats.LastAnsweredDay != "" {
			fmt.Printf("  Today (%s): %d\n", stats.LastAnsweredDay, stats.DailyCount)
		}

		answers, err := db.GetAnswersForClient(ctx, args[0], 10)
		if err != nil {
			return err
		}
		if len(answers) > 0 {
			fmt.Println("\nRecent answers:")
			for _, a := range answers {
				mark := "x"
				if a.IsCorrect {
					mark = "o"
				}
				fmt.Printf("  %s %s  %s\n", mark, a.AnsweredAt.In(cfg.Location()).Format("2006-01-02 15:04"), a.QID)
			}
		}
		return nil
	},
}

func init() {
	quizCmd.AddCommand(quizSeedCmd)
	quizCmd.AddCommand(quizStatsCmd)
}
