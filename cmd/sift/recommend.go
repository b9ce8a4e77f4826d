package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
	"github.com/spendworth/sift/internal/engine"
)

func recommendCmd() *cobra.Command {
	var flags expenseFlags
	var category string
	var receipt bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Predict a category and check the expense for problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			predictReq, err := flags.request()
			if err != nil {
				return err
			}
			resp, err := a.orchestrator.Recommend(cmd.Context(), &engine.RecommendRequest{
				PredictRequest:  *predictReq,
				Category:        category,
				ReceiptAttached: receipt,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(resp)
			}
			fmt.Print(cli.RenderPredictions(resp.Predictions, resp.ColdStart))
			if warnings := cli.RenderWarnings(resp.Errors); warnings != "" {
				fmt.Println()
				fmt.Print(warnings)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&category, "category", "c", "", "pre-selected category (for validation)")
	cmd.Flags().BoolVar(&receipt, "receipt", false, "receipt is attached")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
