// Package export writes claim audit workbooks for payer compliance
// reviews.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/store"
)

var claimHeader = []string{
	"Claim ID", "Status", "Rule", "Final ICD-10", "Final CPT",
	"Confidence", "Diagnosis", "Procedure", "Rejection Reason",
	"Settlement ID", "Created", "Updated",
}

// WriteClaims exports claims matching the filter into an XLSX workbook at
// path. It returns the number of claims written.
func WriteClaims(ctx context.Context, st store.Store, filter store.ClaimFilter, path string) (int, error) {
	claims, err := st.ListClaims(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "export: list claims")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Claims")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range claimHeader {
		header.AddCell().SetString(h)
	}

	for _, c := range claims {
		appendClaimRow(sheet, c)
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}
	return len(claims), nil
}

func appendClaimRow(sheet *xlsx.Sheet, c model.Claim) {
	row := sheet.AddRow()
	row.AddCell().SetString(c.ID)
	row.AddCell().SetString(string(c.Status))
	row.AddCell().SetString(c.RuleID)
	row.AddCell().SetString(c.FinalICD10)
	row.AddCell().SetString(c.FinalCPT)
	row.AddCell().SetFloatWithFormat(c.ConfidenceScore, "0.00")
	row.AddCell().SetString(c.ExtractedDiagnosis)
	row.AddCell().SetString(c.ExtractedProcedure)
	row.AddCell().SetString(c.RejectionReason)
	row.AddCell().SetString(c.SettlementID)
	row.AddCell().SetString(c.CreatedAt.UTC().Format(time.RFC3339))
	row.AddCell().SetString(c.UpdatedAt.UTC().Format(time.RFC3339))
}

// AuditTrail renders a claim's stage history as indented text, one line
// per event, for inclusion in review packets.
func AuditTrail(c *model.Claim) string {
	if len(c.Messages) == 0 {
		return "(no recorded events)"
	}
	var sb strings.Builder
	for _, ev := range c.Messages {
		fmt.Fprintf(&sb, "%s  [%s] %s\n", ev.At.UTC().Format(time.RFC3339), ev.Stage, ev.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}
