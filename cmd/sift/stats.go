package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
)

func statsCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's feedback statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.ledger.Stats(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(stats)
			}
			fmt.Println(cli.RenderStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var userID string
	var windowDays int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show accuracy, feedback, and retraining status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			builder := newDashboardBuilder(a)
			dashboard, err := builder.Build(cmd.Context(), userID, windowDays)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(dashboard)
			}
			fmt.Println(cli.RenderDashboard(dashboard))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identifier (required)")
	cmd.Flags().IntVar(&windowDays, "days", 30, "trailing window in days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
