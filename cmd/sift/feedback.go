package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
	"github.com/spendworth/sift/internal/model"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect prediction feedback",
	}
	cmd.AddCommand(feedbackAddCmd())
	cmd.AddCommand(feedbackHistoryCmd())
	cmd.AddCommand(feedbackClearCmd())
	return cmd
}

func feedbackAddCmd() *cobra.Command {
	var (
		userID        string
		merchant      string
		date          string
		notes         string
		predicted     string
		actual        string
		feedbackType  string
		modelVersion  string
		amount        float64
		confidenceVal float64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record feedback on a prediction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			record := &model.FeedbackRecord{
				UserID:            userID,
				Merchant:          merchant,
				Notes:             notes,
				PredictedCategory: predicted,
				ActualCategory:    actual,
				ModelVersion:      modelVersion,
				FeedbackType:      model.FeedbackType(feedbackType),
				Amount:            amount,
				Confidence:        confidenceVal,
			}
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", date, err)
				}
				record.Date = d
			}

			id, err := a.ledger.Append(cmd.Context(), record)
			if err != nil {
				return err
			}

			if err := a.monitor.Record(cmd.Context(), model.PredictionOutcome{
				UserID:            userID,
				PredictedCategory: predicted,
				ActualCategory:    record.ActualCategory,
				ModelVersion:      modelVersion,
				Confidence:        confidenceVal,
				IsCorrect:         record.IsCorrect,
			}); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("Recorded feedback " + id))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().StringVarP(&merchant, "merchant", "m", "", "merchant name (required)")
	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "expense amount (required)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "expense date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "expense notes")
	cmd.Flags().StringVarP(&predicted, "predicted", "p", "", "predicted category (required)")
	cmd.Flags().StringVar(&actual, "actual", "", "actual category (required for corrected)")
	cmd.Flags().StringVarP(&feedbackType, "type", "t", "", "feedback type: accepted, corrected, rejected (required)")
	cmd.Flags().Float64Var(&confidenceVal, "confidence", 0, "prediction confidence [0,1]")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "model version that produced the prediction")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("predicted")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func feedbackHistoryCmd() *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent feedback, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			records, err := a.ledger.History(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum records to show")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func feedbackClearCmd() *cobra.Command {
	var userID string
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a user's entire feedback ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to clear feedback without --yes")
			}

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.ledger.Clear(cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Cleared feedback for " + userID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm deletion")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
