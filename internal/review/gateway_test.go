package review

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/rules"
	"github.com/clearcoast/claims-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "review.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// suspiciousClaim walks a fresh claim through every stage to the
// suspicious holding status.
func suspiciousClaim(t *testing.T, s store.Store) *model.Claim {
	t.Helper()
	ctx := context.Background()

	claim, err := s.CreateClaim(ctx, "Patient complains of vague throat discomfort.")
	require.NoError(t, err)

	require.NoError(t, s.SaveExtraction(ctx, claim.ID, model.Entities{
		Diagnosis: "sore throat", Procedure: "strep test",
	}, nil))
	require.NoError(t, s.SaveCandidates(ctx, claim.ID,
		[]model.CodeCandidate{{Code: "J02.9", Description: "Acute pharyngitis", Score: 0.8}},
		[]model.CodeCandidate{{Code: "87880", Description: "Strep A assay", Score: 0.9}},
		nil))
	require.NoError(t, s.SaveDecision(ctx, claim.ID, model.Decision{
		FinalICD10: "J02.9", FinalCPT: "87880",
		Explanation: "Best available match.", Confidence: 0.60,
	}, nil))
	require.NoError(t, s.SaveVerdict(ctx, claim.ID, model.Verdict{
		Status: model.ClaimStatusSuspicious,
		Reason: "AI confidence (0.60) is below the 0.80 threshold.",
		RuleID: rules.RuleLowConfidence,
	}, nil))

	out, err := s.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimStatusSuspicious, out.Status)
	return out
}

func TestSubmitReview_Approves(t *testing.T) {
	s := newTestStore(t)
	claim := suspiciousClaim(t, s)
	g := NewGateway(s)

	updated, err := g.SubmitReview(context.Background(), claim.ID, model.ReviewApproved,
		"dr.patel", "Chart confirms strep diagnosis.")

	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusApproved, updated.Status)
	assert.Equal(t, "Human Override by dr.patel: Chart confirms strep diagnosis.", updated.RejectionReason)

	var reviewed bool
	for _, ev := range updated.Messages {
		if ev.Stage == "review" {
			reviewed = true
		}
	}
	assert.True(t, reviewed, "expected a review audit event")
}

func TestSubmitReview_Rejects(t *testing.T) {
	s := newTestStore(t)
	claim := suspiciousClaim(t, s)
	g := NewGateway(s)

	updated, err := g.SubmitReview(context.Background(), claim.ID, model.ReviewRejected,
		"dr.osei", "Documentation does not support the procedure.")

	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusRejected, updated.Status)
}

func TestSubmitReview_SecondSubmissionFails(t *testing.T) {
	s := newTestStore(t)
	claim := suspiciousClaim(t, s)
	g := NewGateway(s)
	ctx := context.Background()

	_, err := g.SubmitReview(ctx, claim.ID, model.ReviewApproved, "dr.patel", "Looks fine.")
	require.NoError(t, err)

	_, err = g.SubmitReview(ctx, claim.ID, model.ReviewRejected, "dr.osei", "Disagree.")
	var nre *NotReviewableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, model.ClaimStatusApproved, nre.Status)

	// The first resolution stands.
	current, err := s.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusApproved, current.Status)
}

func TestSubmitReview_RefusesNonSuspiciousClaim(t *testing.T) {
	s := newTestStore(t)
	g := NewGateway(s)
	ctx := context.Background()

	claim, err := s.CreateClaim(ctx, "fresh note")
	require.NoError(t, err)

	before, err := s.GetClaim(ctx, claim.ID)
	require.NoError(t, err)

	_, err = g.SubmitReview(ctx, claim.ID, model.ReviewApproved, "dr.patel", "n/a")
	var nre *NotReviewableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, model.ClaimStatusPending, nre.Status)

	// A refused review leaves the claim untouched.
	after, err := s.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestSubmitReview_UnknownClaim(t *testing.T) {
	s := newTestStore(t)
	g := NewGateway(s)

	_, err := g.SubmitReview(context.Background(), "no-such-id", model.ReviewApproved, "dr.patel", "n/a")
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestSubmitReview_InvalidDecision(t *testing.T) {
	s := newTestStore(t)
	g := NewGateway(s)

	_, err := g.SubmitReview(context.Background(), "any", model.ReviewDecision("escalate"), "dr.patel", "n/a")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestPendingReviews(t *testing.T) {
	s := newTestStore(t)
	g := NewGateway(s)
	ctx := context.Background()

	first := suspiciousClaim(t, s)
	second := suspiciousClaim(t, s)

	pending, err := g.PendingReviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []string{pending[0].ID, pending[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}
