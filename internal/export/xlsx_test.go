package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/rules"
	"github.com/clearcoast/claims-cli/internal/store"
)

func seedClaim(t *testing.T, s store.Store, verdict model.Verdict) *model.Claim {
	t.Helper()
	ctx := context.Background()

	claim, err := s.CreateClaim(ctx, "Sore throat, rapid strep positive.")
	require.NoError(t, err)
	require.NoError(t, s.SaveExtraction(ctx, claim.ID, model.Entities{
		Diagnosis: "strep throat", Procedure: "rapid strep test",
	}, nil))
	require.NoError(t, s.SaveCandidates(ctx, claim.ID,
		[]model.CodeCandidate{{Code: "J02.0", Description: "Streptococcal pharyngitis", Score: 0.94}},
		[]model.CodeCandidate{{Code: "87880", Description: "Strep A assay", Score: 0.91}},
		nil))
	require.NoError(t, s.SaveDecision(ctx, claim.ID, model.Decision{
		FinalICD10: "J02.0", FinalCPT: "87880",
		Explanation: "Clear match.", Confidence: 0.95,
	}, nil))
	require.NoError(t, s.SaveVerdict(ctx, claim.ID, verdict, nil))

	out, err := s.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	return out
}

func TestWriteClaims(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewSQLite(filepath.Join(dir, "export.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	defer s.Close()

	approved := seedClaim(t, s, model.Verdict{
		Status: model.ClaimStatusApproved,
		Reason: "Claim meets all medical necessity rules.",
		RuleID: rules.RulePass,
	})
	seedClaim(t, s, model.Verdict{
		Status: model.ClaimStatusSuspicious,
		Reason: "AI confidence (0.60) is below the 0.80 threshold.",
		RuleID: rules.RuleLowConfidence,
	})

	path := filepath.Join(dir, "claims.xlsx")
	n, err := WriteClaims(context.Background(), s, store.ClaimFilter{}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Claim ID", sheet.Rows[0].Cells[0].String())

	var statuses []string
	for _, row := range sheet.Rows[1:] {
		statuses = append(statuses, row.Cells[1].String())
	}
	assert.Contains(t, statuses, "approved")
	assert.Contains(t, statuses, "suspicious")

	// Filtered export writes only the matching claim.
	filteredPath := filepath.Join(dir, "approved.xlsx")
	n, err = WriteClaims(context.Background(), s, store.ClaimFilter{
		Status: model.ClaimStatusApproved,
	}, filteredPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err = xlsx.OpenFile(filteredPath)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 2)
	assert.Equal(t, approved.ID, f.Sheets[0].Rows[1].Cells[0].String())
}

func TestAuditTrail(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	claim := &model.Claim{
		Messages: []model.StageEvent{
			{Stage: "intake", Message: "Claim received.", At: at},
			{Stage: "extraction", Message: "Extracted entities successfully.", At: at.Add(time.Second)},
		},
	}

	trail := AuditTrail(claim)
	assert.Contains(t, trail, "[intake] Claim received.")
	assert.Contains(t, trail, "[extraction] Extracted entities successfully.")

	assert.Equal(t, "(no recorded events)", AuditTrail(&model.Claim{}))
}
