package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/pkg/payments"
)

var payAmount float64

var payCmd = &cobra.Command{
	Use:   "pay <claim-id>",
	Short: "Settle an approved claim through the payments service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		claimID := args[0]

		if cfg.Payments.BaseURL == "" {
			return eris.New("payments base URL is not configured (CLAIMS_PAYMENTS_BASE_URL)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		claim, err := st.GetClaim(ctx, claimID)
		if err != nil {
			return eris.Wrapf(err, "get claim %s", claimID)
		}
		if claim.Status != model.ClaimStatusApproved {
			return eris.Errorf("claim %s is %s, only approved claims can be settled", claimID, claim.Status)
		}
		if claim.SettlementID != "" {
			return eris.Errorf("claim %s is already settled (%s)", claimID, claim.SettlementID)
		}

		client := payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.Key)
		resp, err := client.Payout(ctx, payments.PayoutRequest{
			ClaimID:     claimID,
			Amount:      payAmount,
			Description: fmt.Sprintf("Claim %s: %s / %s", claimID, claim.FinalICD10, claim.FinalCPT),
		})
		if err != nil {
			return eris.Wrap(err, "submit payout")
		}

		messages := append(claim.Messages, model.StageEvent{
			Stage:   "settlement",
			Message: fmt.Sprintf("Settled %.2f via %s.", resp.Amount, resp.SettlementID),
			At:      time.Now().UTC(),
		})
		if err := st.SettlePayment(ctx, claimID, resp.Amount, resp.SettlementID, messages); err != nil {
			// The payout went through but the record write lost a race.
			// Surface the settlement ID so the operator can reconcile.
			return eris.Wrapf(err, "record settlement %s for claim %s", resp.SettlementID, claimID)
		}

		zap.L().Info("claim settled",
			zap.String("claim_id", claimID),
			zap.String("settlement_id", resp.SettlementID),
			zap.Float64("amount", resp.Amount))

		updated, err := st.GetClaim(ctx, claimID)
		if err != nil {
			return eris.Wrapf(err, "get claim %s", claimID)
		}
		return printJSON(updated)
	},
}

func init() {
	payCmd.Flags().Float64Var(&payAmount, "amount", 0, "payout amount (required)")
	_ = payCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(payCmd)
}
