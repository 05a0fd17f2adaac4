package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearcoast/claims-cli/internal/export"
	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/store"
)

var (
	listStatus string
	listLimit  int
	listOffset int
	showTrail  bool
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect stored claims",
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List claims, optionally filtered by status",
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

		filter := store.ClaimFilter{Limit: listLimit, Offset: listOffset}
		if listStatus != "" {
			filter.Status = model.ClaimStatus(listStatus)
		}

		claims, err := st.ListClaims(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list claims")
		}
		return printJSON(claims)
	},
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show one claim with its full audit trail",
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

		claim, err := st.GetClaim(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get claim %s", args[0])
		}

		if showTrail {
			fmt.Println(export.AuditTrail(claim))
			return nil
		}
		return printJSON(claim)
	},
}

func init() {
	claimsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by claim status")
	claimsListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum claims to return")
	claimsListCmd.Flags().IntVar(&listOffset, "offset", 0, "claims to skip")
	claimsShowCmd.Flags().BoolVar(&showTrail, "trail", false, "print the audit trail instead of JSON")

	claimsCmd.AddCommand(claimsListCmd)
	claimsCmd.AddCommand(claimsShowCmd)
	rootCmd.AddCommand(claimsCmd)
}
