package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
	"github.com/spendworth/sift/internal/engine"
	"github.com/spendworth/sift/internal/model"
)

type expenseFlags struct {
	userID   string
	merchant string
	date     string
	notes    string
	amount   float64
	topK     int
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().StringVarP(&f.merchant, "merchant", "m", "", "merchant name (required)")
	cmd.Flags().Float64VarP(&f.amount, "amount", "a", 0, "expense amount (required)")
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "expense date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&f.notes, "notes", "n", "", "expense notes")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of suggestions (1-5, default 3)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("amount")
}

func (f *expenseFlags) request() (*engine.PredictRequest, error) {
	req := &engine.PredictRequest{
		UserID:   f.userID,
		Merchant: f.merchant,
		Notes:    f.notes,
		Amount:   f.amount,
		TopK:     f.topK,
	}
	if f.date != "" {
		date, err := time.Parse("2006-01-02", f.date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", f.date, err)
		}
		req.Date = date
	}
	return req, nil
}

func predictCmd() *cobra.Command {
	var flags expenseFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict an expense's category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			req, err := flags.request()
			if err != nil {
				return err
			}
			resp, err := a.orchestrator.Predict(cmd.Context(), req)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(resp)
			}
			fmt.Print(cli.RenderPredictions(resp.Predictions, resp.ColdStart))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func modelsCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show a user's trained model versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			infos, err := a.orchestrator.ModelInfo(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if asJSON {
				if infos == nil {
					infos = []model.ModelInfo{}
				}
				return printJSON(infos)
			}
			fmt.Println(cli.RenderModelInfo(infos))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
