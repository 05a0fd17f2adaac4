package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/export"
	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/store"
)

var (
	exportOut    string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export claims to an XLSX audit workbook",
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

		filter := store.ClaimFilter{}
		if exportStatus != "" {
			filter.Status = model.ClaimStatus(exportStatus)
		}

		n, err := export.WriteClaims(ctx, st, filter, exportOut)
		if err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("path", exportOut), zap.Int("claims", n))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "claims.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "export only claims with this status")
	rootCmd.AddCommand(exportCmd)
}
