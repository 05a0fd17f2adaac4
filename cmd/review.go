package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/review"
)

var (
	reviewDecision string
	reviewer       string
	reviewNotes    string
)

var reviewCmd = &cobra.Command{
	Use:   "review <claim-id>",
	Short: "Resolve a suspicious claim with a human decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		gw := review.NewGateway(st)
		claim, err := gw.SubmitReview(ctx, args[0], model.ReviewDecision(reviewDecision), reviewer, reviewNotes)
		if err != nil {
			return err
		}

		return printJSON(claim)
	},
}

var reviewPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List claims awaiting human review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		pending, err := review.NewGateway(st).PendingReviews(ctx, listLimit)
		if err != nil {
			return err
		}
		return printJSON(pending)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewDecision, "decision", "", "review outcome: approved or rejected (required)")
	reviewCmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer identity (required)")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "reviewer notes for the audit log")
	_ = reviewCmd.MarkFlagRequired("decision")
	_ = reviewCmd.MarkFlagRequired("reviewer")

	reviewCmd.AddCommand(reviewPendingCmd)
	rootCmd.AddCommand(reviewCmd)
}
