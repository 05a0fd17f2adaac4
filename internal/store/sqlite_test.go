package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcoast/claims-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func event(stage, msg string) model.StageEvent {
	return model.StageEvent{Stage: stage, Message: msg, At: time.Now().UTC()}
}

func TestSQLite_CreateAndGetClaim(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim, err := st.CreateClaim(ctx, "Patient complains of severe sore throat.")
	require.NoError(t, err)
	assert.NotEmpty(t, claim.ID)
	assert.Equal(t, model.ClaimStatusPending, claim.Status)

	got, err := st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.ID, got.ID)
	assert.Equal(t, "Patient complains of severe sore throat.", got.ClinicalNote)
	assert.Equal(t, model.ClaimStatusPending, got.Status)
	assert.Empty(t, got.Messages)
}

func TestSQLite_CreateClaim_EmptyNote(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.CreateClaim(context.Background(), "")
	require.Error(t, err)
}

func TestSQLite_GetClaim_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetClaim(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_FullStageWalk(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim, err := st.CreateClaim(ctx, "Performed rapid strep test for sore throat.")
	require.NoError(t, err)

	msgs := []model.StageEvent{event("extract", "Extracted entities successfully.")}
	require.NoError(t, st.SaveExtraction(ctx, claim.ID, model.Entities{
		Diagnosis: "sore throat",
		Procedure: "rapid strep test",
	}, msgs))

	got, err := st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusExtracted, got.Status)
	assert.Equal(t, "sore throat", got.ExtractedDiagnosis)
	require.Len(t, got.Messages, 1)

	msgs = append(msgs, event("retrieve", "Retrieved candidate codes."))
	icd := []model.CodeCandidate{{Code: "J02.9", Description: "Acute pharyngitis, unspecified", Score: 0.91}}
	cpt := []model.CodeCandidate{{Code: "87880", Description: "Strep A assay w/optic", Score: 0.88}}
	require.NoError(t, st.SaveCandidates(ctx, claim.ID, icd, cpt, msgs))

	got, err = st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusCoded, got.Status)
	require.Len(t, got.ICD10Candidates, 1)
	assert.Equal(t, "J02.9", got.ICD10Candidates[0].Code)
	assert.InDelta(t, 0.88, got.CPTCandidates[0].Score, 0.001)

	msgs = append(msgs, event("synthesize", "Selected final codes."))
	require.NoError(t, st.SaveDecision(ctx, claim.ID, model.Decision{
		FinalICD10:  "J02.9",
		FinalCPT:    "87880",
		Explanation: "Strep test matches pharyngitis presentation.",
		Confidence:  0.95,
	}, msgs))

	got, err = st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusAdjudicated, got.Status)
	assert.Equal(t, "J02.9", got.FinalICD10)
	assert.InDelta(t, 0.95, got.ConfidenceScore, 0.001)

	msgs = append(msgs, event("adjudicate", "Payer rules approved the claim."))
	require.NoError(t, st.SaveVerdict(ctx, claim.ID, model.Verdict{
		Status: model.ClaimStatusApproved,
		Reason: "Claim meets all medical necessity rules.",
		RuleID: "PASS",
	}, msgs))

	got, err = st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusApproved, got.Status)
	assert.Equal(t, "PASS", got.RuleID)
	assert.Empty(t, got.RejectionReason) // approved claims carry no rejection reason
	assert.Len(t, got.Messages, 4)
}

func TestSQLite_SaveExtraction_StatusConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim, err := st.CreateClaim(ctx, "note")
	require.NoError(t, err)

	require.NoError(t, st.SaveExtraction(ctx, claim.ID, model.Entities{Diagnosis: "x"}, nil))

	// Second extraction write must fail: the claim already moved on.
	err = st.SaveExtraction(ctx, claim.ID, model.Entities{Diagnosis: "y"}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStatusConflict))

	// Extraction fields were not overwritten.
	got, err := st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.ExtractedDiagnosis)
}

func TestSQLite_SaveVerdict_RejectedKeepsReason(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim := walkToAdjudicated(t, st)

	require.NoError(t, st.SaveVerdict(ctx, claim, model.Verdict{
		Status: model.ClaimStatusRejected,
		Reason: "Missing diagnosis or procedure code.",
		RuleID: "R0_MISSING_DATA",
	}, nil))

	got, err := st.GetClaim(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusRejected, got.Status)
	assert.Equal(t, "Missing diagnosis or procedure code.", got.RejectionReason)
}

func TestSQLite_SaveVerdict_RejectsNonTerminalStatus(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.SaveVerdict(context.Background(), "id", model.Verdict{Status: model.ClaimStatusCoded}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestSQLite_MarkError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim, err := st.CreateClaim(ctx, "note")
	require.NoError(t, err)

	require.NoError(t, st.MarkError(ctx, claim.ID, model.ClaimStatusPending,
		"Extraction output was not valid JSON.",
		[]model.StageEvent{event("extract", "Error: judge failed to output valid JSON.")}))

	got, err := st.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusError, got.Status)
	assert.Equal(t, "Extraction output was not valid JSON.", got.RejectionReason)
	require.Len(t, got.Messages, 1)
}

func TestSQLite_OverrideVerdict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim := walkToAdjudicated(t, st)
	require.NoError(t, st.SaveVerdict(ctx, claim, model.Verdict{
		Status: model.ClaimStatusSuspicious,
		Reason: "AI confidence (0.60) is below the 0.80 threshold.",
		RuleID: "R1_LOW_CONFIDENCE",
	}, nil))

	require.NoError(t, st.OverrideVerdict(ctx, claim, model.ClaimStatusApproved,
		"Human Override by Senior Medical Coder: verified against chart.", nil))

	got, err := st.GetClaim(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusApproved, got.Status)
	assert.Contains(t, got.RejectionReason, "Senior Medical Coder")

	// A second override must conflict: the claim is no longer suspicious.
	err = st.OverrideVerdict(ctx, claim, model.ClaimStatusRejected, "second thoughts", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStatusConflict))
}

func TestSQLite_OverrideVerdict_InvalidStatus(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.OverrideVerdict(context.Background(), "id", model.ClaimStatusSuspicious, "r", nil)
	require.Error(t, err)
}

func TestSQLite_SettlePayment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claim := walkToAdjudicated(t, st)
	require.NoError(t, st.SaveVerdict(ctx, claim, model.Verdict{
		Status: model.ClaimStatusApproved, Reason: "ok", RuleID: "PASS",
	}, nil))

	require.NoError(t, st.SettlePayment(ctx, claim, 125.50, "pi_test_123", nil))

	got, err := st.GetClaim(ctx, claim)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentAmount)
	assert.InDelta(t, 125.50, *got.PaymentAmount, 0.001)
	assert.Equal(t, "pi_test_123", got.SettlementID)

	// Settling twice conflicts.
	err = st.SettlePayment(ctx, claim, 99.0, "pi_test_456", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStatusConflict))
}

func TestSQLite_ListClaims(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateClaim(ctx, "note")
		require.NoError(t, err)
	}
	c, err := st.CreateClaim(ctx, "note to fail")
	require.NoError(t, err)
	require.NoError(t, st.MarkError(ctx, c.ID, model.ClaimStatusPending, "boom", nil))

	all, err := st.ListClaims(ctx, ClaimFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	failed, err := st.ListClaims(ctx, ClaimFilter{Status: model.ClaimStatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)

	limited, err := st.ListClaims(ctx, ClaimFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// walkToAdjudicated advances a fresh claim through the automated stages up
// to the point where a verdict can be written.
func walkToAdjudicated(t *testing.T, st *SQLiteStore) string {
	t.Helper()
	ctx := context.Background()

	claim, err := st.CreateClaim(ctx, "Performed rapid strep test for sore throat.")
	require.NoError(t, err)
	require.NoError(t, st.SaveExtraction(ctx, claim.ID, model.Entities{Diagnosis: "sore throat", Procedure: "strep test"}, nil))
	require.NoError(t, st.SaveCandidates(ctx, claim.ID,
		[]model.CodeCandidate{{Code: "J02.9", Score: 0.9}},
		[]model.CodeCandidate{{Code: "87880", Score: 0.85}}, nil))
	require.NoError(t, st.SaveDecision(ctx, claim.ID, model.Decision{
		FinalICD10: "J02.9", FinalCPT: "87880", Confidence: 0.95,
	}, nil))
	return claim.ID
}
