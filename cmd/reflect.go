package cmd

import (
	"fmt"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/spf13/cobra"
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Reflection questions and their answer threads",
}

var reflectQuestionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List reflection questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		questions, err := a.reflection().Questions(cmd.Context())
		if err != nil {
			return err
		}
		for _, q := range questions {
			fmt.Fprintf(a.out, "%s %s %s\n", q.ID, q.Question, dimStyle.Render(string(q.Frequency)))
		}
		return nil
	},
}

var reflectAskCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Add a reflection question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		name, _ := cmd.Flags().GetString("frequency")
		frequency, err := api.ParseFrequency(name)
		if err != nil {
			return err
		}
		q, err := a.reflection().Ask(cmd.Context(), args[0], frequency)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %s\n", q.ID)
		return nil
	},
}

var reflectAnswersCmd = &cobra.Command{
	Use:   "answers <question-id>",
	Short: "Show the answer threads of a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.reflection()
		q, err := svc.Question(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		roots, err := svc.Refresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, userStyle.Render(q.Question))
		if len(roots) == 0 {
			fmt.Fprintln(a.out, dimStyle.Render("no answers yet"))
			return nil
		}
		printTree(a.out, roots)
		return nil
	},
}

var reflectReplyCmd = &cobra.Command{
	Use:   "reply <question-id> <text>",
	Short: "Answer a question, or reply to an answer with --parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		parent, _ := cmd.Flags().GetString("parent")
		answer, err := a.reflection().Reply(cmd.Context(), args[0], parent, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved %s\n", answer.ID)
		return nil
	},
}

var reflectRemindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Stay running and remind about every question at its frequency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		a.cfg.Reminders.Enabled = true
		reminders := a.startReminders()
		if reminders == nil {
			return fmt.Errorf("reminders could not start")
		}

		questions, err := a.client.ListQuestions(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		for _, q := range questions {
			reminders.ScheduleReflectionReminder(q.Question, q.Frequency)
		}
		logger.Info("scheduled reminders for %d questions", reminders.Pending())
		fmt.Fprintln(a.out, dimStyle.Render(fmt.Sprintf("%d reminders armed, Ctrl-C to stop", reminders.Pending())))

		<-ctx.Done()
		return nil
	},
}

func init() {
	reflectAskCmd.Flags().StringP("frequency", "f", string(api.FrequencyDaily), "reminder frequency: daily, weekly or custom")
	reflectReplyCmd.Flags().String("parent", "", "answer to reply to")

	reflectCmd.AddCommand(reflectQuestionsCmd, reflectAskCmd, reflectAnswersCmd, reflectReplyCmd, reflectRemindCmd)
	rootCmd.AddCommand(reflectCmd)
}
