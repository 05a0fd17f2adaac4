// Package review is the human review gateway. It applies a reviewer's
// one-shot resolution to a suspicious claim; every other status is
// refused, so an override can never race past a concurrent resolution.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/store"
)

// ErrInvalidDecision is returned for decisions other than approved or
// rejected.
var ErrInvalidDecision = eris.New("review: decision must be approved or rejected")

// NotReviewableError is returned when the claim exists but is not awaiting
// review. Status carries what the claim actually was, so callers can tell
// a completed pipeline from an already-resolved review.
type NotReviewableError struct {
	ID     string
	Status model.ClaimStatus
}

func (e *NotReviewableError) Error() string {
	return fmt.Sprintf("review: claim %s is %s, not suspicious", e.ID, e.Status)
}

// Gateway resolves suspicious claims with a human decision.
type Gateway struct {
	store store.Store
}

// NewGateway creates a review gateway over the claim store.
func NewGateway(st store.Store) *Gateway {
	return &Gateway{store: st}
}

// SubmitReview applies a reviewer's decision to a suspicious claim and
// returns the claim in its new terminal state. The override reason and an
// audit event carry the reviewer's identity and notes. A second submission
// for the same claim fails because the claim is no longer suspicious.
func (g *Gateway) SubmitReview(ctx context.Context, claimID string, decision model.ReviewDecision, reviewer, notes string) (*model.Claim, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}
	if reviewer == "" {
		return nil, eris.New("review: reviewer identity is required")
	}

	claim, err := g.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load claim %s", claimID)
	}
	if claim.Status != model.ClaimStatusSuspicious {
		return nil, &NotReviewableError{ID: claimID, Status: claim.Status}
	}

	reason := fmt.Sprintf("Human Override by %s: %s", reviewer, notes)
	messages := append(claim.Messages, model.StageEvent{
		Stage:   "review",
		Message: fmt.Sprintf("Reviewer %s marked claim %s. %s", reviewer, decision, notes),
		At:      time.Now().UTC(),
	})

	if err := g.store.OverrideVerdict(ctx, claimID, decision.Status(), reason, messages); err != nil {
		if eris.Is(err, store.ErrStatusConflict) {
			// Lost the race to another reviewer or the pipeline.
			current, getErr := g.store.GetClaim(ctx, claimID)
			if getErr == nil {
				return nil, &NotReviewableError{ID: claimID, Status: current.Status}
			}
		}
		return nil, eris.Wrapf(err, "review: override claim %s", claimID)
	}

	zap.L().Info("review applied",
		zap.String("claim_id", claimID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer))

	updated, err := g.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, eris.Wrapf(err, "review: reload claim %s", claimID)
	}
	return updated, nil
}

// PendingReviews lists claims currently awaiting a human decision.
func (g *Gateway) PendingReviews(ctx context.Context, limit int) ([]model.Claim, error) {
	claims, err := g.store.ListClaims(ctx, store.ClaimFilter{
		Status: model.ClaimStatusSuspicious,
		Limit:  limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}
	return claims, nil
}
