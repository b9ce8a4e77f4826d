package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
	"github.com/spendworth/sift/internal/retrain"
)

func retrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Evaluate retraining triggers and run training",
	}
	cmd.AddCommand(retrainCheckCmd())
	cmd.AddCommand(retrainRunCmd())
	cmd.AddCommand(retrainStatusCmd())
	cmd.AddCommand(retrainScheduleCmd())
	cmd.AddCommand(retrainWatchCmd())
	return cmd
}

func retrainWatchCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the retraining scheduler until interrupted",
		Long: `Evaluates the retraining triggers for every user on a cron schedule and
trains new model versions where warranted. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			spec := schedule
			if spec == "" {
				spec = a.settings.RetrainSchedule
			}
			if spec == "" {
				return fmt.Errorf("no schedule given; set --schedule or retrain.schedule in config")
			}

			scheduler, err := retrain.NewScheduler(spec, a.decisions, a.runner, a.ledger)
			if err != nil {
				return err
			}
			scheduler.Start(cmd.Context())

			<-cmd.Context().Done()
			a.runner.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression, e.g. \"0 3 * * *\"")
	return cmd
}

func retrainCheckCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate whether retraining should run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			decision, err := a.decisions.ShouldRetrain(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(decision)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func retrainRunCmd() *cobra.Command {
	var userID string
	var async bool
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train a new model version from accumulated feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if async {
				res, err := retrain.Trigger(cmd.Context(), a.decisions, a.runner, userID, force)
				if err != nil {
					return err
				}
				if res.Status == retrain.TriggerStatusSkipped {
					fmt.Println(cli.FormatInfo("Retraining skipped: no trigger fired"))
				} else {
					fmt.Println(cli.FormatInfo("Queued retraining job " + res.JobID))
				}
				return printJSON(res)
			}

			if !force {
				decision, err := a.decisions.ShouldRetrain(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if !decision.ShouldRetrain {
					fmt.Println(cli.FormatInfo("Retraining skipped: no trigger fired"))
					return printJSON(&retrain.TriggerResult{
						UserID:  userID,
						Status:  retrain.TriggerStatusSkipped,
						Reasons: decision.Reasons,
					})
				}
			}

			result, err := a.runner.Retrain(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if !result.Success {
				fmt.Println(cli.FormatWarning(result.Error))
				return printJSON(result)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Trained model version %s (accuracy %.3f)",
				result.ModelVersion, result.Metrics["accuracy"])))
			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().BoolVar(&async, "async", false, "queue the job and return immediately")
	cmd.Flags().BoolVar(&force, "force", false, "train even when no trigger fired")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func retrainStatusCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a retraining job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for {
				job, err := a.runner.JobStatus(args[0])
				if err != nil {
					return err
				}
				if !wait || job.State == retrain.JobSucceeded || job.State == retrain.JobFailed {
					return printJSON(job)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(time.Second):
				}
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	return cmd
}

func retrainScheduleCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show retraining schedule and status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			schedule, err := a.decisions.ScheduleFor(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(schedule)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
